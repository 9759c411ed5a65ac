package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseHostSpec(t *testing.T) {
	tests := []struct {
		spec    string
		want    HostSpec
		wantErr bool
	}{
		{spec: "203.0.113.10", want: HostSpec{Host: "203.0.113.10"}},
		{spec: "root@203.0.113.10", want: HostSpec{User: "root", Host: "203.0.113.10"}},
		{spec: "web.example.com:2222", want: HostSpec{Host: "web.example.com", Port: 2222}},
		{spec: "deploy@web:2222", want: HostSpec{User: "deploy", Host: "web", Port: 2222}},
		{spec: "2001:db8::1", want: HostSpec{Host: "2001:db8::1"}},
		{spec: "[2001:db8::1]", want: HostSpec{Host: "2001:db8::1"}},
		{spec: "ops@[2001:db8::1]:22", want: HostSpec{User: "ops", Host: "2001:db8::1", Port: 22}},
		{spec: "  web  ", want: HostSpec{Host: "web"}},
		{spec: "", wantErr: true},
		{spec: "@web", wantErr: true},
		{spec: "web:0", wantErr: true},
		{spec: "web:99999", wantErr: true},
		{spec: "web:ssh", wantErr: true},
		{spec: "root@", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			got, err := ParseHostSpec(tt.spec)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestHostSpec_String(t *testing.T) {
	assert.Equal(t, "web", HostSpec{Host: "web"}.String())
	assert.Equal(t, "root@web:2222", HostSpec{User: "root", Host: "web", Port: 2222}.String())
	assert.Equal(t, "[2001:db8::1]", HostSpec{Host: "2001:db8::1"}.String())
	assert.Equal(t, "ops@[2001:db8::1]:22", HostSpec{User: "ops", Host: "2001:db8::1", Port: 22}.String())
}
