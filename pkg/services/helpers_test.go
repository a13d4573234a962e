package services

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNullableString(t *testing.T) {
	cases := []struct {
		in   string
		want sql.NullString
	}{
		{"", sql.NullString{Valid: false}},
		{"s3://bucket/key.json", sql.NullString{String: "s3://bucket/key.json", Valid: true}},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, nullableString(c.in))
	}
}
