package prompt

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/llj0824/weibo-research-guanghua/internal/selector"
)

// Group is one experimental condition: whether the generated reply uses the
// user's post history and whether the AI identity is disclosed, plus the
// prompt template and system prompt used for generation.
type Group struct {
	ID           string `yaml:"id"`
	Name         string `yaml:"name"`
	UsesHistory  bool   `yaml:"uses_history"`
	DeclaresAI   bool   `yaml:"declares_ai"`
	Template     string `yaml:"template"`
	SystemPrompt string `yaml:"system_prompt"`
}

// Enabled reports whether this group generates replies at all. The control
// group carries no template and is skipped during generation.
func (g Group) Enabled() bool {
	return g.Template != ""
}

// BuildPrompt renders the final prompt for a trigger post, returning the
// prompt and the history block that was substituted into it.
func (g Group) BuildPrompt(userName string, trigger selector.Post, history []selector.Post) (finalPrompt, historyBlock string) {
	historyBlock = DefaultHistoryFallback
	if g.UsesHistory && len(history) > 0 {
		historyBlock = RenderHistory(history, "")
	}

	content := trigger.Content
	if content == "" {
		content = "No content available"
	}

	finalPrompt = Render(g.Template, map[string]string{
		TokenUserName:    userName,
		TokenPostContent: content,
		TokenUserHistory: historyBlock,
	})
	return finalPrompt, historyBlock
}

// Library holds the group configurations, keyed by group ID.
type Library struct {
	groups map[string]Group
	order  []string
}

// NewLibrary builds a library from the given groups. Later duplicates of an
// ID win.
func NewLibrary(groups []Group) *Library {
	l := &Library{groups: make(map[string]Group, len(groups))}
	for _, g := range groups {
		if _, seen := l.groups[g.ID]; !seen {
			l.order = append(l.order, g.ID)
		}
		l.groups[g.ID] = g
	}
	return l
}

// LoadLibrary reads group configuration from a YAML file.
func LoadLibrary(path string) (*Library, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read group config: %w", err)
	}
	var doc struct {
		Groups []Group `yaml:"groups"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse group config: %w", err)
	}
	if len(doc.Groups) == 0 {
		return nil, fmt.Errorf("group config %s defines no groups", path)
	}
	return NewLibrary(doc.Groups), nil
}

// Get returns the group with the given ID.
func (l *Library) Get(id string) (Group, bool) {
	g, ok := l.groups[id]
	return g, ok
}

// All returns the groups in their configured order.
func (l *Library) All() []Group {
	out := make([]Group, 0, len(l.order))
	for _, id := range l.order {
		out = append(out, l.groups[id])
	}
	return out
}

// DefaultLibrary returns the built-in experimental conditions used by the
// Weibo study when no group config file is supplied.
func DefaultLibrary() *Library {
	const humanSystem = "你是一个微博用户，正在浏览并回复其他用户的内容。请以真实、自然的方式互动。"
	const aiSystem = "你是一个AI助手，在微博上帮助用户并提供有价值的回复。请诚实地表明你的AI身份，同时保持友好和有帮助。"

	const baseTemplate = "请对以下微博内容生成一个回复：\n\n\"{post_content}\"\n\n" +
		"回复要求：\n- 长度控制在50-150字\n- 与原帖内容相关\n- 提供有价值的观点或信息\n- 保持礼貌和积极的语气\n"
	const historyTemplate = "请对以下微博内容生成一个回复：\n\n\"{post_content}\"\n\n" +
		"用户 {user_name} 的历史动态：\n{user_history}\n\n" +
		"回复要求：\n- 长度控制在50-150字\n- 与原帖内容相关\n- 提供有价值的观点或信息\n- 保持礼貌和积极的语气\n"

	return NewLibrary([]Group{
		{ID: "control", Name: "Control"},
		{ID: "group1", Name: "AI as Human - No Context", Template: baseTemplate, SystemPrompt: humanSystem},
		{ID: "group2", Name: "AI as Human - With History", UsesHistory: true, Template: historyTemplate, SystemPrompt: humanSystem},
		{ID: "group3", Name: "AI Declared - No Context", DeclaresAI: true, Template: baseTemplate, SystemPrompt: aiSystem},
		{ID: "group4", Name: "AI Declared - With History", UsesHistory: true, DeclaresAI: true, Template: historyTemplate, SystemPrompt: aiSystem},
	})
}
