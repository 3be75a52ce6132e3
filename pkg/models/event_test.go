package models

import (
	"errors"
	"testing"
)

func TestNormalizeKind(t *testing.T) {
	tests := []struct {
		in   string
		want ActivityKind
	}{
		{"send", KindSend},
		{"receive", KindReceive},
		{"mint", KindMint},
		{"burn", KindBurn},
		{"swap", KindSwap},
		{"approve", KindApprove},
		{"airdrop", KindUnknown},
		{"", KindUnknown},
		{"SEND", KindUnknown},
	}

	for _, tt := range tests {
		if got := NormalizeKind(tt.in); got != tt.want {
			t.Errorf("NormalizeKind(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseActivities(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantErr   bool
		wantCount int
	}{
		{
			name:      "valid payload",
			body:      `{"activities":[{"type":"send","tx_hash":"0xabc","chain_id":1,"from":"0x1","to":"0x2","value":"100","asset_type":"erc20","token_address":"0xT"}]}`,
			wantCount: 1,
		},
		{
			name:      "empty array",
			body:      `{"activities":[]}`,
			wantCount: 0,
		},
		{
			name:    "missing array",
			body:    `{"events":[]}`,
			wantErr: true,
		},
		{
			name:    "wrong typed field",
			body:    `{"activities":"nope"}`,
			wantErr: true,
		},
		{
			name:    "unparsable body",
			body:    `{"activities":`,
			wantErr: true,
		},
		{
			name:    "body is an array",
			body:    `[1,2,3]`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := ParseActivities([]byte(tt.body))
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				var malformed *ErrMalformedPayload
				if !errors.As(err, &malformed) {
					t.Errorf("expected ErrMalformedPayload, got %T", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(p.Activities) != tt.wantCount {
				t.Errorf("got %d activities, want %d", len(p.Activities), tt.wantCount)
			}
		})
	}
}

func TestParseBalanceChanges(t *testing.T) {
	body := `{"balance_changes":[{"direction":"in","amount":"5000","asset":"erc20","address":"0xwhale"}]}`
	p, err := ParseBalanceChanges([]byte(body))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(p.BalanceChanges) != 1 {
		t.Fatalf("got %d changes, want 1", len(p.BalanceChanges))
	}
	if p.BalanceChanges[0].Direction != "in" {
		t.Errorf("direction = %q, want in", p.BalanceChanges[0].Direction)
	}

	if _, err := ParseBalanceChanges([]byte(`{"balance_changes":{}}`)); err == nil {
		t.Error("expected error for wrong-typed field")
	}
}

func TestParseTransactions(t *testing.T) {
	body := `{"transactions":[{"hash":"0x1","chain":"ethereum","success":true},{"hash":"0x2","chain":"ethereum","success":false}]}`
	p, err := ParseTransactions([]byte(body))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(p.Transactions) != 2 {
		t.Fatalf("got %d transactions, want 2", len(p.Transactions))
	}
	if !p.Transactions[0].Success || p.Transactions[1].Success {
		t.Error("success flags not preserved")
	}
}

func TestTokenMetadataIsValid(t *testing.T) {
	price := 1.5
	tests := []struct {
		name string
		meta *TokenMetadata
		want bool
	}{
		{"nil", nil, false},
		{"complete", &TokenMetadata{Symbol: "FOO", Name: "Foo Token", Decimals: 18, PriceUSD: &price}, true},
		{"no price still valid", &TokenMetadata{Symbol: "FOO", Name: "Foo Token"}, true},
		{"missing symbol", &TokenMetadata{Name: "Foo Token"}, false},
		{"missing name", &TokenMetadata{Symbol: "FOO"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.meta.IsValid(); got != tt.want {
				t.Errorf("IsValid() = %v, want %v", got, tt.want)
			}
		})
	}
}
