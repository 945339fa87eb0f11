// Package env 在进程启动时把 .env 文件加载进环境变量。
//
// 来源按优先级依次为：FLASHAGENT_ENV_FILE 指定的文件、从工作目录向上找到的第一个 .env、
// 用户配置目录下的 FlashAgent/flashagent.env。已存在的环境变量不会被覆盖，
// 因此靠前的来源与进程真实环境优先。
package env

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/adrg/xdg"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// EnvFile 显式指定 .env 路径。
const EnvFile = "FLASHAGENT_ENV_FILE"

const userEnvFile = "flashagent.env"

var (
	loadOnce sync.Once
	loaded   []string
	loadErr  error

	// configHome 可在测试中替换。
	configHome = func() string { return filepath.Join(xdg.ConfigHome, "FlashAgent") }
)

// Ensure 加载所有存在的来源，只执行一次。
// go test 下默认跳过，需要时设置 GOTEST_LOAD_DOTENV=1。
func Ensure() error {
	if testing.Testing() && os.Getenv("GOTEST_LOAD_DOTENV") != "1" {
		return nil
	}
	loadOnce.Do(func() {
		sources, err := sources()
		if err != nil {
			log.Debug().Err(err).Msg("flashagent: search .env failed")
		}
		loaded, loadErr = load(sources)
		if loadErr == nil {
			loadErr = err
		}
	})
	return loadErr
}

// LoadedPaths 返回已加载的文件，按加载顺序。
func LoadedPaths() []string {
	return append([]string(nil), loaded...)
}

func sources() ([]string, error) {
	var out []string
	if explicit := strings.TrimSpace(os.Getenv(EnvFile)); explicit != "" {
		out = append(out, explicit)
	}
	wd, err := os.Getwd()
	if err != nil {
		return out, errors.Wrap(err, "get working directory")
	}
	found, err := walkUp(wd)
	if err != nil {
		return out, err
	}
	if found != "" {
		out = append(out, found)
	}
	return append(out, filepath.Join(configHome(), userEnvFile)), nil
}

// load 依次加载存在的文件；显式指定但不存在的文件视为错误。
func load(paths []string) ([]string, error) {
	var (
		done     []string
		firstErr error
		seen     = make(map[string]bool, len(paths))
	)
	for i, path := range paths {
		abs, err := filepath.Abs(path)
		if err == nil {
			path = abs
		}
		if seen[path] {
			continue
		}
		seen[path] = true
		if !isFile(path) {
			if i == 0 && strings.TrimSpace(os.Getenv(EnvFile)) != "" && firstErr == nil {
				firstErr = errors.Errorf("%s points to missing file %s", EnvFile, path)
			}
			continue
		}
		if err := godotenv.Load(path); err != nil {
			log.Warn().Err(err).Str("dotenv", path).Msg("flashagent: load .env failed")
			if firstErr == nil {
				firstErr = errors.Wrapf(err, "load %s", path)
			}
			continue
		}
		log.Debug().Str("dotenv", path).Msg("flashagent: loaded .env")
		done = append(done, path)
	}
	return done, firstErr
}

func walkUp(dir string) (string, error) {
	for {
		candidate := filepath.Join(dir, ".env")
		info, err := os.Stat(candidate)
		switch {
		case err == nil && !info.IsDir():
			return candidate, nil
		case err != nil && !errors.Is(err, os.ErrNotExist):
			return "", errors.Wrapf(err, "stat %s", candidate)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", nil
		}
		dir = parent
	}
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
