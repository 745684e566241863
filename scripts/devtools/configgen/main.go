package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

// Profile describes one environment: base configs plus overrides per service.
type Profile struct {
	OutputDir string                    `yaml:"outputDir"`
	Backends  BackendProfile            `yaml:"backends"`
	Services  map[string]ServiceProfile `yaml:"services"`
}

// BackendProfile holds addresses shared by every judge-service config of the environment.
type BackendProfile struct {
	RedisAddr     string   `yaml:"redisAddr"`
	MySQLDSN      string   `yaml:"mysqlDSN"`
	MinIOEndpoint string   `yaml:"minioEndpoint"`
	KafkaBrokers  []string `yaml:"kafkaBrokers"`
	JudgeURL      string   `yaml:"judgeURL"`
}

type ServiceProfile struct {
	Base      string                 `yaml:"base"`
	Output    string                 `yaml:"output"`
	Kind      string                 `yaml:"kind"`
	Overrides map[string]interface{} `yaml:"overrides"`
}

const (
	kindJudgeService = "judge-service"
	kindCLI          = "cli"
)

func main() {
	profilePath := flag.String("profile", "configs/dev-profile.yaml", "Path to config profile")
	outputDir := flag.String("output-dir", "", "Override output directory")
	flag.Parse()

	profilePathAbs, err := filepath.Abs(*profilePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "resolve profile path failed: %v\n", err)
		os.Exit(1)
	}

	profile, err := loadProfile(profilePathAbs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load profile failed: %v\n", err)
		os.Exit(1)
	}
	if *outputDir != "" {
		profile.OutputDir = *outputDir
	}

	written, err := generate(profile, filepath.Dir(profilePathAbs))
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	for _, path := range written {
		fmt.Println(path)
	}
}

// generate writes one merged config per service and returns the written paths.
func generate(profile *Profile, profileDir string) ([]string, error) {
	if profile.OutputDir == "" {
		return nil, errors.New("output directory is required")
	}
	if !filepath.IsAbs(profile.OutputDir) {
		profile.OutputDir = filepath.Join(profileDir, profile.OutputDir)
	}
	if err := os.MkdirAll(profile.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory failed: %w", err)
	}

	serviceNames := make([]string, 0, len(profile.Services))
	for name := range profile.Services {
		serviceNames = append(serviceNames, name)
	}
	sort.Strings(serviceNames)

	written := make([]string, 0, len(serviceNames))
	for _, name := range serviceNames {
		service := profile.Services[name]
		if service.Base == "" {
			return nil, fmt.Errorf("service %q missing base config", name)
		}
		if !filepath.IsAbs(service.Base) {
			service.Base = filepath.Join(profileDir, service.Base)
		}

		baseConfig, err := loadYAML(service.Base)
		if err != nil {
			return nil, fmt.Errorf("load base config for %q failed: %w", name, err)
		}
		baseConfig = normalizeValue(baseConfig)

		if len(service.Overrides) > 0 {
			merged, err := mergeMap(baseConfig, normalizeValue(service.Overrides))
			if err != nil {
				return nil, fmt.Errorf("merge overrides for %q failed: %w", name, err)
			}
			baseConfig = merged
		}
		baseConfig, err = applyBackends(profile.Backends, service.Kind, baseConfig)
		if err != nil {
			return nil, fmt.Errorf("apply backends for %q failed: %w", name, err)
		}

		outputPath, err := resolveOutputPath(profile.OutputDir, service)
		if err != nil {
			return nil, fmt.Errorf("resolve output path for %q failed: %w", name, err)
		}
		if err := writeYAML(outputPath, baseConfig); err != nil {
			return nil, fmt.Errorf("write config for %q failed: %w", name, err)
		}
		written = append(written, outputPath)
	}
	return written, nil
}

func loadProfile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profile failed: %w", err)
	}

	var profile Profile
	if err := yaml.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("parse profile failed: %w", err)
	}
	if len(profile.Services) == 0 {
		return nil, errors.New("profile has no services")
	}
	return &profile, nil
}

func loadYAML(path string) (interface{}, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read yaml failed: %w", err)
	}

	var value interface{}
	if err := yaml.Unmarshal(data, &value); err != nil {
		return nil, fmt.Errorf("parse yaml failed: %w", err)
	}
	return value, nil
}

func writeYAML(path string, value interface{}) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output dir failed: %w", err)
	}
	data, err := yaml.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal yaml failed: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write yaml failed: %w", err)
	}
	return nil
}

func resolveOutputPath(outputDir string, service ServiceProfile) (string, error) {
	output := service.Output
	if output == "" {
		output = filepath.Base(service.Base)
	}
	if output == "" {
		return "", errors.New("output path is empty")
	}
	if filepath.IsAbs(output) {
		return output, nil
	}
	return filepath.Join(outputDir, output), nil
}

func normalizeValue(value interface{}) interface{} {
	switch typed := value.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(typed))
		for k, v := range typed {
			out[k] = normalizeValue(v)
		}
		return out
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(typed))
		for k, v := range typed {
			key, ok := k.(string)
			if !ok {
				key = fmt.Sprintf("%v", k)
			}
			out[key] = normalizeValue(v)
		}
		return out
	case []interface{}:
		out := make([]interface{}, 0, len(typed))
		for _, item := range typed {
			out = append(out, normalizeValue(item))
		}
		return out
	default:
		return value
	}
}

func mergeMap(base interface{}, override interface{}) (interface{}, error) {
	baseMap, ok := base.(map[string]interface{})
	if !ok {
		return nil, errors.New("base config is not a map")
	}
	overrideMap, ok := override.(map[string]interface{})
	if !ok {
		return nil, errors.New("override config is not a map")
	}

	merged := make(map[string]interface{}, len(baseMap))
	for k, v := range baseMap {
		merged[k] = v
	}

	for key, overrideValue := range overrideMap {
		baseValue, exists := merged[key]
		if !exists {
			merged[key] = overrideValue
			continue
		}

		baseChild, baseIsMap := baseValue.(map[string]interface{})
		overrideChild, overrideIsMap := overrideValue.(map[string]interface{})
		if baseIsMap && overrideIsMap {
			combined, err := mergeMap(baseChild, overrideChild)
			if err != nil {
				return nil, err
			}
			merged[key] = combined
			continue
		}
		merged[key] = overrideValue
	}
	return merged, nil
}

// applyBackends points a config at the profile's shared backends.
// Empty profile values leave the config untouched.
func applyBackends(backends BackendProfile, kind string, config interface{}) (interface{}, error) {
	root, ok := config.(map[string]interface{})
	if !ok {
		return nil, errors.New("service config is not a map")
	}
	switch kind {
	case kindJudgeService:
		setNested(root, "redis", "addr", backends.RedisAddr)
		setNested(root, "database", "dsn", backends.MySQLDSN)
		setNested(root, "minio", "endpoint", backends.MinIOEndpoint)
		if len(backends.KafkaBrokers) > 0 {
			brokers := make([]interface{}, 0, len(backends.KafkaBrokers))
			for _, b := range backends.KafkaBrokers {
				brokers = append(brokers, b)
			}
			section(root, "kafka")["brokers"] = brokers
		}
	case kindCLI:
		if backends.JudgeURL != "" {
			root["baseURL"] = backends.JudgeURL
		}
	case "":
	default:
		return nil, fmt.Errorf("unknown service kind %q", kind)
	}
	return root, nil
}

func setNested(root map[string]interface{}, sectionName, key, value string) {
	if value == "" {
		return
	}
	section(root, sectionName)[key] = value
}

func section(root map[string]interface{}, name string) map[string]interface{} {
	child, ok := root[name].(map[string]interface{})
	if !ok {
		child = map[string]interface{}{}
		root[name] = child
	}
	return child
}
