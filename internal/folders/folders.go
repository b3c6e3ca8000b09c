// Package folders routes chats into folders based on a YAML rules file.
package folders

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/chatvault/chatvault/internal/models"
)

// Rule assigns a folder to chats matching all of its non-empty conditions.
type Rule struct {
	FolderID      int64  `yaml:"folder_id"`
	TitleContains string `yaml:"title_contains,omitempty"`
	Type          string `yaml:"type,omitempty"`
	Username      string `yaml:"username,omitempty"`
}

type rulesFile struct {
	Rules []Rule `yaml:"rules"`
}

// Router applies routing rules to chats. The zero value routes everything to
// the implicit folder 0.
type Router struct {
	rules []Rule
}

// NewRouter creates a router from an explicit rule list.
func NewRouter(rules []Rule) *Router {
	return &Router{rules: rules}
}

// Load reads routing rules from a YAML file. An empty path yields an empty
// router so folder routing stays optional.
func Load(path string) (*Router, error) {
	if path == "" {
		return &Router{}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read folder rules: %w", err)
	}

	var file rulesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse folder rules: %w", err)
	}

	return &Router{rules: file.Rules}, nil
}

// Route returns the folder for a chat. When several rules match, the last
// matching rule wins. A chat matching no rule stays in folder 0.
func (r *Router) Route(chat models.Chat) int64 {
	folderID := models.AllChatsFolderID
	for _, rule := range r.rules {
		if rule.matches(chat) {
			folderID = rule.FolderID
		}
	}
	return folderID
}

func (rule Rule) matches(chat models.Chat) bool {
	if rule.TitleContains != "" &&
		!strings.Contains(strings.ToLower(chat.Title), strings.ToLower(rule.TitleContains)) {
		return false
	}
	if rule.Type != "" && string(chat.Type) != rule.Type {
		return false
	}
	if rule.Username != "" {
		if chat.Username == nil || !strings.EqualFold(*chat.Username, rule.Username) {
			return false
		}
	}
	return rule.TitleContains != "" || rule.Type != "" || rule.Username != ""
}
