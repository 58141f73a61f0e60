package cluster

import (
	"encoding/json"
	"testing"
)

func TestRoleValid(t *testing.T) {
	tests := []struct {
		role Role
		want bool
	}{
		{RoleProposer, true},
		{RoleAcceptor, true},
		{RoleLearner, true},
		{RoleNone, false},
		{Role("leader"), false},
	}

	for _, tt := range tests {
		t.Run(string(tt.role), func(t *testing.T) {
			if got := tt.role.Valid(); got != tt.want {
				t.Errorf("Role(%q).Valid() = %v, want %v", tt.role, got, tt.want)
			}
		})
	}
}

func TestPeerAddr(t *testing.T) {
	p := Peer{NodeID: 400, IP: "127.0.0.1", Port: 9003}
	if p.Addr() != "127.0.0.1:9003" {
		t.Errorf("Addr() = %s", p.Addr())
	}
	if p.String() != "400@127.0.0.1:9003" {
		t.Errorf("String() = %s", p.String())
	}

	v6 := Peer{NodeID: 1, IP: "::1", Port: 80}
	if v6.Addr() != "[::1]:80" {
		t.Errorf("Addr() = %s", v6.Addr())
	}
}

// TestVerdictWireFormat checks the field names other peers decode
func TestVerdictWireFormat(t *testing.T) {
	data, err := json.Marshal(NonPrime(91, 7, 10, 7))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if m["action"] != "non-prime" {
		t.Errorf("action = %v", m["action"])
	}
	if m["divisibleBy"] != float64(7) {
		t.Errorf("divisibleBy = %v", m["divisibleBy"])
	}

	data, _ = json.Marshal(Prime(17, 2, 4))
	m = map[string]interface{}{}
	_ = json.Unmarshal(data, &m)
	if _, ok := m["divisibleBy"]; ok {
		t.Error("prime verdict should not carry a divisor")
	}
}

func TestVerdictRequest(t *testing.T) {
	v := NonPrime(91, 7, 10, 7)
	want := PrimeCheckRequest{Check: 91, Start: 7, End: 10}
	if v.Request() != want {
		t.Errorf("Request() = %+v, want %+v", v.Request(), want)
	}
}
