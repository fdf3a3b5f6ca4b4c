package model

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestNormalize(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.FixedZone("UTC+2", 2*3600))

	tests := []struct {
		name    string
		action  ProposedAction
		wantErr bool
	}{
		{
			name:   "minimal valid action",
			action: ProposedAction{ActionType: ActionScaleDown, Target: ActionTarget{ResourceID: "vm-web-01"}},
		},
		{
			name:    "missing resource id",
			action:  ProposedAction{ActionType: ActionScaleDown},
			wantErr: true,
		},
		{
			name:    "missing action type",
			action:  ProposedAction{Target: ActionTarget{ResourceID: "vm-web-01"}},
			wantErr: true,
		},
		{
			name:    "unknown action type",
			action:  ProposedAction{ActionType: "explode", Target: ActionTarget{ResourceID: "vm-web-01"}},
			wantErr: true,
		},
		{
			name:    "unknown urgency",
			action:  ProposedAction{ActionType: ActionScaleUp, Target: ActionTarget{ResourceID: "vm"}, Urgency: "panic"},
			wantErr: true,
		},
		{
			name: "caller-supplied uuid kept",
			action: ProposedAction{ActionID: "7f9c24e8-3b12-4f6a-9d5e-1c8b2a7d4e90",
				ActionType: ActionScaleUp, Target: ActionTarget{ResourceID: "vm"}},
		},
		{
			// IDs become file names and storage keys; only UUIDs pass.
			name: "caller-supplied non-uuid id rejected",
			action: ProposedAction{ActionID: "../escape",
				ActionType: ActionScaleUp, Target: ActionTarget{ResourceID: "vm"}},
			wantErr: true,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			a := tc.action
			err := a.Normalize(now)
			if tc.wantErr {
				if !errors.Is(err, ErrInvalidInput) {
					t.Fatalf("err = %v, want ErrInvalidInput", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Normalize: %v", err)
			}
			if a.Urgency == "" {
				t.Error("urgency default not applied")
			}
			if _, err := uuid.Parse(a.ActionID); err != nil {
				t.Errorf("action id %q is not a UUID", a.ActionID)
			}
			if a.Timestamp.Location() != time.UTC {
				t.Error("timestamp must be UTC")
			}
		})
	}
}

func TestNormalizeKeepsExplicitTimestamp(t *testing.T) {
	at := time.Date(2026, 8, 1, 10, 30, 0, 0, time.FixedZone("UTC+2", 2*3600))
	a := ProposedAction{ActionType: ActionScaleUp, Target: ActionTarget{ResourceID: "vm"}, Timestamp: at}
	if err := a.Normalize(time.Now()); err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if !a.Timestamp.Equal(at) || a.Timestamp.Location() != time.UTC {
		t.Errorf("timestamp = %v, want %v in UTC", a.Timestamp, at)
	}
}
