package domain

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestToStatus(t *testing.T) {
	req := require.New(t)

	req.Equal(RUNNING, ToStatus("R"))
	req.Equal(SLEEP, ToStatus("S"))
	req.Equal(ZOMBIE, ToStatus("Z"))
	req.Equal(UNKNOWN, ToStatus("?"))
}
