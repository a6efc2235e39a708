package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/supsol/poreview/internal/policy"
)

// PolicyFile overrides escalation settings from YAML. Zero values keep the
// environment settings.
type PolicyFile struct {
	Timeframes       policy.Timeframes `yaml:"timeframes"`
	MaxEmailAttempts int               `yaml:"max_email_attempts"`
	KnowledgeAllowed *bool             `yaml:"knowledge_allowed"`
	Languages        struct {
		Base       string            `yaml:"base"`
		Directions map[string]string `yaml:"directions"`
		Names      map[string]string `yaml:"names"`
	} `yaml:"languages"`
}

func LoadPolicyFile(path string) (PolicyFile, error) {
	var pf PolicyFile
	b, err := os.ReadFile(path)
	if err != nil {
		return pf, fmt.Errorf("read policy file: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&pf); err != nil {
		return pf, fmt.Errorf("parse policy file %s: %w", path, err)
	}
	for code, dir := range pf.Languages.Directions {
		switch policy.Direction(strings.ToLower(dir)) {
		case policy.LTR, policy.RTL:
		default:
			return pf, fmt.Errorf("policy file %s: language %s: direction must be ltr or rtl, got %q", path, code, dir)
		}
	}
	return pf, nil
}

// Engine builds the escalation engine from the environment and, when
// POLICY_FILE is set, the policy file on top of it.
func (c Config) Engine() (*policy.Engine, error) {
	tf := policy.Timeframes{
		Email:      c.EmailTimeframe,
		Message:    c.MessageTimeframe,
		Call:       c.CallTimeframe,
		Escalation: c.EscalationTimeframe,
	}
	base := c.BaseLanguage
	maxEmails := c.MaxEmailAttempts
	knowledge := c.KnowledgeAllowed

	var pf PolicyFile
	if c.PolicyFile != "" {
		var err error
		if pf, err = LoadPolicyFile(c.PolicyFile); err != nil {
			return nil, err
		}
		override(&tf.Email, pf.Timeframes.Email)
		override(&tf.Message, pf.Timeframes.Message)
		override(&tf.Call, pf.Timeframes.Call)
		override(&tf.Escalation, pf.Timeframes.Escalation)
		if pf.Languages.Base != "" {
			base = pf.Languages.Base
		}
		if pf.MaxEmailAttempts > 0 {
			maxEmails = pf.MaxEmailAttempts
		}
		if pf.KnowledgeAllowed != nil {
			knowledge = *pf.KnowledgeAllowed
		}
	}

	langs := policy.NewLanguageTable(base)
	for code, dir := range pf.Languages.Directions {
		langs.SetDirection(code, policy.Direction(strings.ToLower(dir)))
	}
	for name, code := range pf.Languages.Names {
		langs.SetName(name, code)
	}
	e := policy.NewEngine(tf, langs)
	e.MaxEmailAttempts = maxEmails
	e.KnowledgeAllowed = knowledge
	return e, nil
}

func override[T comparable](dst *T, v T) {
	var zero T
	if v != zero {
		*dst = v
	}
}
