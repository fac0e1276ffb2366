package storage

import (
	"duo-lab/domain"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRowMapper(t *testing.T) {
	t.Run("should decode table rows as json", func(t *testing.T) {
		req := require.New(t)
		data, err := encodeRow(domain.Row{"id": "p1", "title": "Picnic"})
		req.NoError(err)

		row := RowMapper("row:plans:p1", data)

		req.Equal("PLANS", row.Type)
		req.JSONEq(`{"id":"p1","title":"Picnic"}`, row.Detail)
	})

	t.Run("should flag undecodable rows", func(t *testing.T) {
		req := require.New(t)

		row := RowMapper("row:plans:p1", []byte{0xff, 0xff})

		req.Contains(row.Detail, "unmarshal failed")
	})

	t.Run("should show preferences as is", func(t *testing.T) {
		req := require.New(t)

		row := RowMapper(prefUserKey, []byte("angy"))

		req.Equal("PREF", row.Type)
		req.Equal("angy", row.Detail)
	})
}
