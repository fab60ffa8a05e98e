package cliutil

import (
	"reflect"
	"testing"
)

func TestSplitPositional(t *testing.T) {
	cases := []struct {
		name          string
		args          []string
		max           int
		wantPositional []string
		wantRest       []string
	}{
		{
			name:           "all positional, no flags",
			args:           []string{"127.0.0.1", "9000", "4096"},
			max:            3,
			wantPositional: []string{"127.0.0.1", "9000", "4096"},
			wantRest:       []string{},
		},
		{
			name:           "trailing flags",
			args:           []string{"127.0.0.1", "9000", "-config", "qrudp.yaml"},
			max:            3,
			wantPositional: []string{"127.0.0.1", "9000"},
			wantRest:       []string{"-config", "qrudp.yaml"},
		},
		{
			name:           "optional third positional omitted",
			args:           []string{"127.0.0.1", "9000", "-metrics-addr", ":9090"},
			max:            3,
			wantPositional: []string{"127.0.0.1", "9000"},
			wantRest:       []string{"-metrics-addr", ":9090"},
		},
		{
			name:           "max caps positional capture",
			args:           []string{"127.0.0.1", "9000", "4096", "extra"},
			max:            3,
			wantPositional: []string{"127.0.0.1", "9000", "4096"},
			wantRest:       []string{"extra"},
		},
		{
			name:           "empty args",
			args:           nil,
			max:            3,
			wantPositional: []string{},
			wantRest:       []string{},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			gotPositional, gotRest := SplitPositional(tc.args, tc.max)
			if !reflect.DeepEqual(gotPositional, tc.wantPositional) && !(len(gotPositional) == 0 && len(tc.wantPositional) == 0) {
				t.Errorf("positional = %v, want %v", gotPositional, tc.wantPositional)
			}
			if !reflect.DeepEqual(gotRest, tc.wantRest) && !(len(gotRest) == 0 && len(tc.wantRest) == 0) {
				t.Errorf("rest = %v, want %v", gotRest, tc.wantRest)
			}
		})
	}
}
