// Package profile 从 YAML 文件加载设备配置并按型号或 SoC 匹配。
package profile

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// DefaultName 没有任何 profile 匹配时返回的名称。
const DefaultName = "Generic MediaTek Device"

// Profile 对应一个 YAML 文件：
//
//	device:
//	  name: Redmi Note 8 Pro
//	  model: Redmi Note 8 Pro
//	  soc: mt6785
//	  manufacturer: Xiaomi
type Profile struct {
	Device Device `yaml:"device"`
	// Source 是加载该 profile 的文件路径
	Source string `yaml:"-"`
}

// Device 描述设备身份。
type Device struct {
	Name         string `yaml:"name" json:"name"`
	Model        string `yaml:"model,omitempty" json:"model,omitempty"`
	SoC          string `yaml:"soc,omitempty" json:"soc,omitempty"`
	Manufacturer string `yaml:"manufacturer,omitempty" json:"manufacturer,omitempty"`
}

// Parse 解析单个 profile。
func Parse(data []byte) (Profile, error) {
	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Profile{}, errors.Wrap(err, "profile: decode yaml")
	}
	if strings.TrimSpace(p.Device.Name) == "" {
		return Profile{}, errors.New("profile: device.name is required")
	}
	return p, nil
}

// LoadDir 加载目录下所有 .yaml/.yml 文件，按文件名排序。
// 目录不存在时返回空列表；单个文件解析失败时记录日志并跳过。
func LoadDir(dir string) ([]Profile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "profile: read dir %s", dir)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".yaml", ".yml":
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	profiles := make([]Profile, 0, len(names))
	for _, name := range names {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			log.Warn().Err(err).Str("file", path).Msg("skip unreadable device profile")
			continue
		}
		p, err := Parse(data)
		if err != nil {
			log.Warn().Err(err).Str("file", path).Msg("skip invalid device profile")
			continue
		}
		p.Source = path
		profiles = append(profiles, p)
	}
	return profiles, nil
}

// Match 先按型号精确匹配，再按 SoC 忽略大小写匹配，都失败时返回 DefaultName。
func Match(profiles []Profile, model, soc string) string {
	if p, ok := Find(profiles, model, soc); ok {
		return p.Device.Name
	}
	return DefaultName
}

// Find 与 Match 规则相同，返回命中的 profile。
func Find(profiles []Profile, model, soc string) (Profile, bool) {
	model = strings.TrimSpace(model)
	soc = strings.TrimSpace(soc)
	if model != "" {
		for _, p := range profiles {
			if strings.TrimSpace(p.Device.Model) == model {
				return p, true
			}
		}
	}
	if soc != "" {
		for _, p := range profiles {
			if s := strings.TrimSpace(p.Device.SoC); s != "" && strings.EqualFold(s, soc) {
				return p, true
			}
		}
	}
	return Profile{}, false
}
