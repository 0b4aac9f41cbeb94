package meshgo_test

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/hupe1980/meshgo"
)

func TestLoggerCarriesRankAndCycle(t *testing.T) {
	var buf bytes.Buffer
	l := meshgo.NewLogger(slog.NewTextHandler(&buf, nil))

	l.WithRank(3).WithCycle(7).LogModification(time.Millisecond, errors.New("boom"))

	out := buf.String()
	assert.Contains(t, out, "rank=3")
	assert.Contains(t, out, "cycle=7")
	assert.Contains(t, out, "modification cycle failed")
	assert.Contains(t, out, "boom")
}
