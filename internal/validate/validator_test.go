package validate

import (
	"errors"
	"testing"
)

func newTestValidator(t *testing.T) *Validator {
	t.Helper()
	v, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return v
}

func TestEverySchemaCompiles(t *testing.T) {
	v := newTestValidator(t)
	for _, name := range []string{Register, Login, CreateTask, CreateProposal, UpdateProposalStatus, ReleasePayment, UpdateContractStatus, InitiateThread, SendMessage} {
		if _, ok := v.schemas[name]; !ok {
			t.Errorf("schema %q not loaded", name)
		}
	}
}

func TestValidate(t *testing.T) {
	v := newTestValidator(t)

	cases := []struct {
		name   string
		schema string
		body   string
		valid  bool
	}{
		{"task ok", CreateTask, `{"title":"Walk my dog","description":"30 min","budget":12.5,"skills":["pets"]}`, true},
		{"task budget as string", CreateTask, `{"title":"t","description":"d","budget":"12.50"}`, true},
		{"task zero budget", CreateTask, `{"title":"t","description":"d","budget":0}`, false},
		{"task missing title", CreateTask, `{"description":"d","budget":5}`, false},
		{"task three decimals", CreateTask, `{"title":"t","description":"d","budget":"1.005"}`, false},
		{"proposal ok", CreateProposal, `{"task_id":"8a7f1c2e-6b1d-4c55-9a0e-0f1b2c3d4e5f","amount":20,"message":"I can help"}`, true},
		{"proposal negative", CreateProposal, `{"task_id":"8a7f1c2e-6b1d-4c55-9a0e-0f1b2c3d4e5f","amount":-1,"message":"x"}`, false},
		{"proposal bad id", CreateProposal, `{"task_id":"nope","amount":1,"message":"x"}`, false},
		{"accept", UpdateProposalStatus, `{"status":"accepted"}`, true},
		{"pending is not a decision", UpdateProposalStatus, `{"status":"pending"}`, false},
		{"release everything", ReleasePayment, `{}`, true},
		{"release part", ReleasePayment, `{"amount":"10"}`, true},
		{"release cents", ReleasePayment, `{"amount":19.99}`, true},
		{"release fraction of a cent", ReleasePayment, `{"amount":0.005}`, false},
		{"proposal fraction of a cent", CreateProposal, `{"task_id":"8a7f1c2e-6b1d-4c55-9a0e-0f1b2c3d4e5f","amount":20.001,"message":"x"}`, false},
		{"task fraction of a cent", CreateTask, `{"title":"t","description":"d","budget":3.333}`, false},
		{"display status", UpdateContractStatus, `{"status":"in-progress"}`, true},
		{"active is not requestable", UpdateContractStatus, `{"status":"active"}`, false},
		{"initiate", InitiateThread, `{"task_id":"8a7f1c2e-6b1d-4c55-9a0e-0f1b2c3d4e5f","partner_id":"0b6c7d8e-1f2a-4b3c-8d4e-5f6a7b8c9d0e"}`, true},
		{"initiate without partner", InitiateThread, `{"task_id":"8a7f1c2e-6b1d-4c55-9a0e-0f1b2c3d4e5f"}`, false},
		{"message", SendMessage, `{"text":"Is Tuesday fine?"}`, true},
		{"blank message", SendMessage, `{"text":"   "}`, false},
		{"register short password", Register, `{"email":"a@b.c","password":"123","display_name":"A"}`, false},
		{"not json", Login, `{`, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := v.Validate(tc.schema, []byte(tc.body))
			if tc.valid && err != nil {
				t.Errorf("expected valid, got %v", err)
			}
			if !tc.valid && !errors.Is(err, ErrValidation) {
				t.Errorf("expected ErrValidation, got %v", err)
			}
		})
	}
}

func TestValidate_UnknownSchema(t *testing.T) {
	v := newTestValidator(t)
	err := v.Validate("nope", []byte(`{}`))
	if err == nil || errors.Is(err, ErrValidation) {
		t.Errorf("unknown schema should be a plain error, got %v", err)
	}
}
