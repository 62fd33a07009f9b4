package taskconfig

// Config is the task override file.
// ⭐ SSOT: 태스크 활성화/타임아웃 오버라이드는 이 파일 형식으로만
//
//	version: 1
//	tasks:
//	  news:
//	    enabled: false
//	  sentiment:
//	    timeout: 30s
type Config struct {
	Version int                     `yaml:"version" json:"version"`
	Tasks   map[string]TaskOverride `yaml:"tasks" json:"tasks"`
}

// TaskOverride changes one registry entry; nil/empty fields keep the default
type TaskOverride struct {
	Enabled *bool  `yaml:"enabled,omitempty" json:"enabled,omitempty"`
	Timeout string `yaml:"timeout,omitempty" json:"timeout,omitempty"`
}

// SupportedVersion is the only accepted file version
const SupportedVersion = 1
