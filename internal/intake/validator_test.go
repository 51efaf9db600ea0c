package intake

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/webforge/backend/internal/models"
)

func TestOrderItem_Valid(t *testing.T) {
	v := MustValidator()
	raw := json.RawMessage(`{
		"work_type": "multi_page",
		"ai_tier": "standard",
		"brief": "Bakery site with menu and contact form",
		"attachments": [
			{"kind": "inline", "path": "copy/menu.md", "content": "# Menu"},
			{"kind": "url", "url": "https://example.com/logo.png"}
		]
	}`)
	item, err := v.OrderItem(raw)
	if err != nil {
		t.Fatalf("OrderItem: %v", err)
	}
	if item.WorkType != models.WorkTypeMultiPage || item.AITier != models.AITierStandard {
		t.Errorf("unexpected item: %+v", item)
	}
	if len(item.Attachments) != 2 || item.Attachments[1].Kind != models.AttachmentURL {
		t.Errorf("attachments not decoded: %+v", item.Attachments)
	}
}

func TestOrderItem_DefaultsTier(t *testing.T) {
	item, err := MustValidator().OrderItem(json.RawMessage(`{"work_type":"single_page"}`))
	if err != nil {
		t.Fatalf("OrderItem: %v", err)
	}
	if item.AITier != models.AITierNone {
		t.Errorf("ai_tier: got %q, want %q", item.AITier, models.AITierNone)
	}
	if item.Attachments == nil {
		t.Error("attachments should be an empty list, not nil")
	}
}

func TestOrderItem_Rejects(t *testing.T) {
	v := MustValidator()
	cases := map[string]string{
		"unknown work type":   `{"work_type":"mobile_app"}`,
		"missing work type":   `{"brief":"x"}`,
		"untagged attachment": `{"work_type":"single_page","attachments":[{"path":"a.txt","content":"x"}]}`,
		"inline without path": `{"work_type":"single_page","attachments":[{"kind":"inline","content":"x"}]}`,
		"absolute path":       `{"work_type":"single_page","attachments":[{"kind":"inline","path":"/etc/x","content":"x"}]}`,
		"parent segment":      `{"work_type":"single_page","attachments":[{"kind":"inline","path":"../secrets.txt","content":"x"}]}`,
		"nested parent":       `{"work_type":"single_page","attachments":[{"kind":"inline","path":"copy/../../x","content":"x"}]}`,
		"backslash parent":    `{"work_type":"single_page","attachments":[{"kind":"inline","path":"copy\\..\\x","content":"x"}]}`,
		"non-http url":        `{"work_type":"single_page","attachments":[{"kind":"url","url":"ftp://example.com/a"}]}`,
		"extra field":         `{"work_type":"single_page","price":1}`,
		"not json":            `{work_type`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := v.OrderItem(json.RawMessage(raw)); !errors.Is(err, models.ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
		})
	}
}

func TestEvidence(t *testing.T) {
	v := MustValidator()
	got, err := v.Evidence(nil)
	if err != nil || len(got) != 0 {
		t.Fatalf("nil evidence: got %v, %v", got, err)
	}
	got, err = v.Evidence(json.RawMessage(`[{"kind":"url","url":"https://example.com/screenshot.png"}]`))
	if err != nil || len(got) != 1 {
		t.Fatalf("url evidence: got %v, %v", got, err)
	}
	if _, err := v.Evidence(json.RawMessage(`[{"kind":"blob"}]`)); !errors.Is(err, models.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if _, err := v.Evidence(json.RawMessage(`[{"kind":"inline","path":"shots/../../x.png","content":"x"}]`)); !errors.Is(err, models.ErrValidation) {
		t.Fatalf("parent segment: expected ErrValidation, got %v", err)
	}
	got, err = v.Evidence(json.RawMessage(`[{"kind":"inline","path":"shots/..hidden/a..b.png","content":"x"}]`))
	if err != nil || len(got) != 1 {
		t.Fatalf("dots inside names: got %v, %v", got, err)
	}
}
