package catalog

import (
	"archive/tar"
	"context"
	"encoding/json"
	"errors"
	"io"
	"path"
	"strconv"

	"codejudge/internal/common/storage"
	"codejudge/internal/judge/model"
	"codejudge/internal/judge/sandbox/spec"
	appErr "codejudge/pkg/errors"

	"github.com/klauspost/compress/zstd"
	"github.com/puzpuzpuz/xsync/v3"
)

const (
	manifestName        = "manifest.json"
	defaultMaxPackBytes = 64 << 20
)

// PackConfig locates problem data packs in object storage.
type PackConfig struct {
	Bucket    string `yaml:"bucket"`
	KeyPrefix string `yaml:"keyPrefix"`
	// MaxPackBytes bounds the uncompressed size of one pack.
	MaxPackBytes int64 `yaml:"maxPackBytes"`
}

// packManifest is manifest.json at the root of a data pack.
type packManifest struct {
	ProblemID int64              `json:"problemId"`
	Title     string             `json:"title"`
	Limits    spec.ResourceLimit `json:"limits"`
	Tests     []packTest         `json:"tests"`
}

type packTest struct {
	Input  string `json:"input"`
	Output string `json:"output"`
}

type packEntry struct {
	etag    string
	problem model.Problem
}

// PackCatalog loads problems from tar.zst data packs keyed "<prefix><id>.tar.zst".
// Parsed packs are kept in memory until the object's ETag changes.
type PackCatalog struct {
	storage storage.ObjectStorage
	cfg     PackConfig
	packs   *xsync.MapOf[int64, packEntry]
}

func NewPackCatalog(store storage.ObjectStorage, cfg PackConfig) *PackCatalog {
	if cfg.MaxPackBytes <= 0 {
		cfg.MaxPackBytes = defaultMaxPackBytes
	}
	return &PackCatalog{
		storage: store,
		cfg:     cfg,
		packs:   xsync.NewMapOf[int64, packEntry](),
	}
}

func (c *PackCatalog) packKey(problemID int64) string {
	return c.cfg.KeyPrefix + strconv.FormatInt(problemID, 10) + ".tar.zst"
}

func (c *PackCatalog) GetProblem(ctx context.Context, problemID int64) (model.Problem, error) {
	if c.storage == nil {
		return model.Problem{}, appErr.New(appErr.StorageError).WithMessage("storage client is not initialized")
	}
	key := c.packKey(problemID)
	stat, err := c.storage.StatObject(ctx, c.cfg.Bucket, key)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return model.Problem{}, notFound(problemID)
		}
		return model.Problem{}, appErr.Wrapf(err, appErr.StorageError, "stat data pack failed")
	}
	if entry, ok := c.packs.Load(problemID); ok && stat.ETag != "" && entry.etag == stat.ETag {
		return entry.problem, nil
	}

	reader, err := c.storage.GetObject(ctx, c.cfg.Bucket, key)
	if err != nil {
		return model.Problem{}, appErr.Wrapf(err, appErr.StorageError, "download data pack failed")
	}
	defer reader.Close()

	problem, err := readPack(reader, c.cfg.MaxPackBytes)
	if err != nil {
		return model.Problem{}, err
	}
	if problem.ID == 0 {
		problem.ID = problemID
	}
	if problem.ID != problemID {
		return model.Problem{}, appErr.Newf(appErr.TestCaseInvalid, "data pack %s belongs to problem %d", key, problem.ID)
	}
	c.packs.Store(problemID, packEntry{etag: stat.ETag, problem: problem})
	return problem, nil
}

func readPack(r io.Reader, maxBytes int64) (model.Problem, error) {
	zr, err := zstd.NewReader(r)
	if err != nil {
		return model.Problem{}, appErr.Wrapf(err, appErr.TestCaseInvalid, "create zstd reader failed")
	}
	defer zr.Close()

	files := make(map[string][]byte)
	var total int64
	tr := tar.NewReader(zr)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return model.Problem{}, appErr.Wrapf(err, appErr.TestCaseInvalid, "read data pack failed")
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		total += hdr.Size
		if total > maxBytes {
			return model.Problem{}, appErr.Newf(appErr.TestCaseTooLarge, "data pack exceeds %d bytes", maxBytes)
		}
		data, err := io.ReadAll(io.LimitReader(tr, hdr.Size))
		if err != nil {
			return model.Problem{}, appErr.Wrapf(err, appErr.TestCaseInvalid, "read %s failed", hdr.Name)
		}
		files[path.Clean(hdr.Name)] = data
	}

	raw, ok := files[manifestName]
	if !ok {
		return model.Problem{}, appErr.New(appErr.TestCaseInvalid).WithMessage("data pack has no manifest.json")
	}
	var manifest packManifest
	if err := json.Unmarshal(raw, &manifest); err != nil {
		return model.Problem{}, appErr.Wrapf(err, appErr.TestCaseInvalid, "parse manifest failed")
	}

	problem := model.Problem{
		ID:     manifest.ProblemID,
		Title:  manifest.Title,
		Limits: manifest.Limits,
		Cases:  make([]model.TestCase, 0, len(manifest.Tests)),
	}
	for i, t := range manifest.Tests {
		in, ok := files[path.Clean(t.Input)]
		if !ok {
			return model.Problem{}, appErr.Newf(appErr.TestCaseNotFound, "test %d input %s missing", i+1, t.Input)
		}
		out, ok := files[path.Clean(t.Output)]
		if !ok {
			return model.Problem{}, appErr.Newf(appErr.TestCaseNotFound, "test %d output %s missing", i+1, t.Output)
		}
		problem.Cases = append(problem.Cases, model.TestCase{Input: string(in), ExpectedOutput: string(out)})
	}
	return problem, nil
}
