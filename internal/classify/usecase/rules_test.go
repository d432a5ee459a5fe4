package usecase

import "testing"

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name      string
		sender    string
		headers   map[string]string
		blacklist []string
		automated bool
		decisive  bool
		rule      string
	}{
		{name: "human", sender: "jana@example.com"},
		{name: "blacklist glob", sender: "Promo@Shop.example.com", blacklist: []string{"*@shop.example.com"}, automated: true, decisive: true, rule: RuleBlacklist},
		{name: "noreply", sender: "noreply@x.com", automated: true, rule: RuleSender},
		{name: "mailer daemon", sender: "MAILER-DAEMON@x.com", automated: true, rule: RuleSender},
		{name: "auto submitted", sender: "a@x.com", headers: map[string]string{"Auto-Submitted": "auto-generated"}, automated: true, decisive: true, rule: RuleHeader},
		{name: "auto submitted no", sender: "a@x.com", headers: map[string]string{"Auto-Submitted": "no"}},
		{name: "precedence bulk", sender: "a@x.com", headers: map[string]string{"precedence": "Bulk"}, automated: true, decisive: true, rule: RuleHeader},
		{name: "precedence first-class", sender: "a@x.com", headers: map[string]string{"Precedence": "first-class"}},
		{name: "list unsubscribe", sender: "a@x.com", headers: map[string]string{"List-Unsubscribe": "<mailto:u@x.com>"}, automated: true, decisive: true, rule: RuleHeader},
		{name: "list id", sender: "a@x.com", headers: map[string]string{"List-Id": "<dev.x.com>"}, automated: true, decisive: true, rule: RuleHeader},
		{name: "noreply with auto submitted", sender: "noreply@x.com", headers: map[string]string{"Auto-Submitted": "auto-generated"}, automated: true, decisive: true, rule: RuleHeader},
		{name: "notifications with list id", sender: "notifications@github.com", headers: map[string]string{"List-Id": "<repo.github.com>"}, automated: true, decisive: true, rule: RuleHeader},
		{name: "blacklist before sender", sender: "noreply@x.com", blacklist: []string{"noreply@*"}, automated: true, decisive: true, rule: RuleBlacklist},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Evaluate(tt.sender, tt.headers, tt.blacklist)
			if got.IsAutomated != tt.automated || got.Decisive != tt.decisive || got.Rule != tt.rule {
				t.Errorf("Evaluate() = %+v", got)
			}
			if got.IsAutomated && got.Reason == "" {
				t.Error("automated results must carry a reason")
			}
		})
	}
}
