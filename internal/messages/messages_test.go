package messages

import (
	"errors"
	"testing"

	"github.com/buildtall-systems/vinopack/internal/catalog"
)

const (
	testPremiumChannel = "PR2/A7/cantidades/caro"
	testRobotChannel   = "PR2/A7/robodk"
)

func TestEncodeTotals(t *testing.T) {
	tests := []struct {
		category catalog.Category
		want     string
	}{
		{catalog.Premium, `{"id_pedido":7,"total_caro":2}`},
		{catalog.Standard, `{"id_pedido":7,"total_barato":2}`},
	}

	for _, tt := range tests {
		t.Run(string(tt.category), func(t *testing.T) {
			got, err := EncodeTotals(tt.category, 7, 2)
			if err != nil {
				t.Fatalf("EncodeTotals() error: %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("EncodeTotals() = %s, want %s", got, tt.want)
			}
		})
	}

	if _, err := EncodeTotals("bogus", 1, 1); err == nil {
		t.Error("expected error for unknown category")
	}
}

func TestEncodeRobotCommand(t *testing.T) {
	got, err := EncodeRobotCommand(RobotCommand{Command: "start"})
	if err != nil {
		t.Fatalf("EncodeRobotCommand() error: %v", err)
	}
	if string(got) != `{"command":"start"}` {
		t.Errorf("EncodeRobotCommand() = %s", got)
	}
}

func TestDecodeCountReport(t *testing.T) {
	tests := []struct {
		name      string
		category  catalog.Category
		payload   string
		want      *CountReport
		wantErr   error
		malformed bool
	}{
		{
			name:     "premium count",
			category: catalog.Premium,
			payload:  `{"caro": 3}`,
			want:     &CountReport{Category: catalog.Premium, Remaining: 3},
		},
		{
			name:     "standard zero",
			category: catalog.Standard,
			payload:  `{"barato": 0}`,
			want:     &CountReport{Category: catalog.Standard, Remaining: 0},
		},
		{
			name:     "count naming its order",
			category: catalog.Premium,
			payload:  `{"caro": 0, "id_pedido": 12}`,
			want:     &CountReport{Category: catalog.Premium, Remaining: 0, OrderID: 12, HasOrderID: true},
		},
		{
			name:     "own totals echo",
			category: catalog.Premium,
			payload:  `{"id_pedido": 12, "total_caro": 4}`,
			wantErr:  ErrNotCountReport,
		},
		{
			name:     "key for the other category",
			category: catalog.Standard,
			payload:  `{"caro": 0}`,
			wantErr:  ErrNotCountReport,
		},
		{
			name:      "not json",
			category:  catalog.Premium,
			payload:   `caro=0`,
			malformed: true,
		},
		{
			name:      "count is a string",
			category:  catalog.Premium,
			payload:   `{"caro": "0"}`,
			malformed: true,
		},
		{
			name:      "order id is a string",
			category:  catalog.Standard,
			payload:   `{"barato": 0, "id_pedido": "x"}`,
			malformed: true,
		},
		{
			name:      "array payload",
			category:  catalog.Standard,
			payload:   `[0]`,
			malformed: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeCountReport(testPremiumChannel, tt.category, []byte(tt.payload))

			if tt.malformed {
				var mErr *MalformedMessageError
				if !errors.As(err, &mErr) {
					t.Fatalf("expected MalformedMessageError, got %v", err)
				}
				if mErr.Channel != testPremiumChannel {
					t.Errorf("Channel = %q, want %q", mErr.Channel, testPremiumChannel)
				}
				return
			}
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if *got != *tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestDecodeRobotStatus(t *testing.T) {
	tests := []struct {
		name      string
		payload   string
		want      *RobotStatus
		malformed bool
	}{
		{
			name:    "finished",
			payload: `{"command": "finished", "id_pedido": 123}`,
			want:    &RobotStatus{Command: CommandFinished, OrderID: 123},
		},
		{
			name:    "other command",
			payload: `{"command": "started", "id_pedido": 5}`,
			want:    &RobotStatus{Command: "started", OrderID: 5},
		},
		{name: "missing id", payload: `{"command": "finished"}`, malformed: true},
		{name: "missing command", payload: `{"id_pedido": 5}`, malformed: true},
		{name: "id as string", payload: `{"command": "finished", "id_pedido": "5"}`, malformed: true},
		{name: "truncated", payload: `{"command": "fin`, malformed: true},
		{name: "empty", payload: ``, malformed: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeRobotStatus(testRobotChannel, []byte(tt.payload))
			if tt.malformed {
				var mErr *MalformedMessageError
				if !errors.As(err, &mErr) {
					t.Fatalf("expected MalformedMessageError, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if *got != *tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}
