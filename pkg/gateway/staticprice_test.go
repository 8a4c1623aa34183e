package gateway

import (
	"context"
	"testing"
)

func TestStaticPriceSource_GetPrice(t *testing.T) {
	source := NewStaticPriceSource(map[string]float64{"ETH": 2500.50, "USDC": 1})

	tests := []struct {
		name    string
		symbol  string
		want    float64
		wantErr bool
	}{
		{"configured symbol", "ETH", 2500.50, false},
		{"stablecoin", "USDC", 1, false},
		{"unconfigured symbol", "BTC", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			price, err := source.GetPrice(context.Background(), tt.symbol, "USD")
			if (err != nil) != tt.wantErr {
				t.Fatalf("GetPrice(%s) error = %v, wantErr %v", tt.symbol, err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			got, _ := price.Float64()
			if got != tt.want {
				t.Errorf("GetPrice(%s) = %v, want %v", tt.symbol, got, tt.want)
			}
		})
	}
}

func TestStaticPriceSource_ZeroPriceTreatedAsUnconfigured(t *testing.T) {
	source := NewStaticPriceSource(map[string]float64{"SCAM": 0})
	if _, err := source.GetPrice(context.Background(), "SCAM", "USD"); err == nil {
		t.Fatal("expected an error for a symbol configured with a non-positive price")
	}
}
