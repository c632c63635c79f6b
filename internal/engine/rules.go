package engine

import (
	"errors"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/opsward/trend-engine/internal/detect"
	"github.com/opsward/trend-engine/internal/models"
)

// RuleSetting is the operator-tunable side of a rule: everything the
// detectors do not decide themselves.
type RuleSetting struct {
	ID             string          `yaml:"id"`
	BaseConfidence float64         `yaml:"base_confidence"`
	Severity       models.Severity `yaml:"severity"`
	Remediation    []string        `yaml:"remediation"`
	Citations      []string        `yaml:"citations"`
}

// RulePack maps rule ids to their settings. Every built-in rule always has a
// setting; a pack file only overrides fields it names.
type RulePack struct {
	rules map[string]RuleSetting
}

type rulePackFile struct {
	Rules []RuleSetting `yaml:"rules"`
}

// DefaultRulePack returns the built-in settings used when no pack file is
// configured.
func DefaultRulePack() *RulePack {
	defaults := []RuleSetting{
		{
			ID:             detect.RuleServiceFlapping,
			BaseConfidence: 0.8,
			Severity:       models.SeverityWarning,
			Remediation: []string{
				"systemctl --failed",
				"journalctl -p err -b --no-pager -n 50",
			},
			Citations: []string{"systemctl(1)", "journalctl(1)"},
		},
		{
			ID:             detect.RuleDiskGrowth,
			BaseConfidence: 0.8,
			Severity:       models.SeverityWarning,
			Remediation: []string{
				"df -h /",
				"du -xh / 2>/dev/null | sort -rh | head -20",
				"journalctl --vacuum-size=200M",
			},
			Citations: []string{"df(1)", "journalctl(1)"},
		},
		{
			ID:             detect.RuleMemoryPressure,
			BaseConfidence: 0.7,
			Severity:       models.SeverityWarning,
			Remediation: []string{
				"free -h",
				"ps aux --sort=-%mem | head -15",
			},
			Citations: []string{"free(1)", "ps(1)"},
		},
		{
			ID:             detect.RuleCPUPressure,
			BaseConfidence: 0.7,
			Severity:       models.SeverityWarning,
			Remediation: []string{
				"uptime",
				"ps aux --sort=-%cpu | head -15",
			},
			Citations: []string{"uptime(1)", "ps(1)"},
		},
		{
			ID:             detect.RuleKernelRegression,
			BaseConfidence: 0.75,
			Severity:       models.SeverityWarning,
			Remediation: []string{
				"journalctl -k -b -p err --no-pager",
				"systemctl --failed",
			},
			Citations: []string{"journalctl(1)", "kernel-command-line(7)"},
		},
		{
			ID:             detect.RuleNetworkDegradation,
			BaseConfidence: 0.75,
			Severity:       models.SeverityWarning,
			Remediation: []string{
				"ping -c 10 1.1.1.1",
				"resolvectl status",
				"nmcli device status",
			},
			Citations: []string{"ping(8)", "resolvectl(1)", "nmcli(1)"},
		},
	}

	pack := &RulePack{rules: make(map[string]RuleSetting, len(defaults))}
	for _, setting := range defaults {
		pack.rules[setting.ID] = setting
	}
	return pack
}

// LoadRulePack reads operator overrides from path and merges them over the
// built-in defaults. An empty or missing path yields the defaults; a pack
// file that fails to parse is an error so a typo never silently disables
// remediation advice.
func LoadRulePack(path string, logger *slog.Logger) (*RulePack, error) {
	pack := DefaultRulePack()
	if path == "" {
		return pack, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if logger != nil {
				logger.Debug("rule pack not found, using built-in defaults", "path", path)
			}
			return pack, nil
		}
		return nil, err
	}

	var file rulePackFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, err
	}

	for _, override := range file.Rules {
		if override.ID == "" {
			continue
		}
		merged := pack.rules[override.ID]
		merged.ID = override.ID
		if override.BaseConfidence > 0 {
			merged.BaseConfidence = override.BaseConfidence
		}
		if override.Severity != "" {
			merged.Severity = override.Severity
		}
		if len(override.Remediation) > 0 {
			merged.Remediation = override.Remediation
		}
		if len(override.Citations) > 0 {
			merged.Citations = override.Citations
		}
		pack.rules[override.ID] = merged
	}
	return pack, nil
}

// Setting returns the settings for a rule id. Unknown rules get a neutral
// warning-level setting so a future detector without pack coverage still
// emits something sensible.
func (p *RulePack) Setting(id string) RuleSetting {
	if setting, ok := p.rules[id]; ok {
		return setting
	}
	return RuleSetting{ID: id, BaseConfidence: 0.7, Severity: models.SeverityWarning}
}
