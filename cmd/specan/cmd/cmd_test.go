package cmd

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiabin827/gospecan"
	"github.com/xiabin827/gospecan/trace"
)

func TestParseArgs(t *testing.T) {
	args, err := parseArgs([]string{"zone=3", " burst = 5 "})
	require.NoError(t, err)
	assert.Equal(t, gospecan.Args{"zone": 3, "burst": 5}, args)

	args, err = parseArgs(nil)
	require.NoError(t, err)
	assert.Empty(t, args)

	for _, bad := range []string{"zone", "=3", "zone=three", "zone=1.5"} {
		_, err := parseArgs([]string{bad})
		assert.Error(t, err, bad)
	}
}

func testBuffer(t *testing.T, capacity int, reply string) *gospecan.ResultBuffer {
	t.Helper()
	schema := gospecan.NewSchema("test",
		gospecan.IntField("idx"),
		gospecan.FloatField("level"),
		gospecan.EnumField("state", gospecan.NewLookupTable("state", "OFF", "ON")),
	)
	buf := gospecan.NewResultBuffer(schema, capacity)
	_, err := buf.Decode(reply)
	require.NoError(t, err)
	return buf
}

func TestPrintBuffer(t *testing.T) {
	buf := testBuffer(t, 4, "1,-10.5,ON,2,9.91E37,OFF")

	var out bytes.Buffer
	printBuffer(&out, buf)
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, []string{"idx", "level", "state"}, strings.Fields(lines[0]))
	assert.Equal(t, []string{"1", "-10.5", "ON"}, strings.Fields(lines[1]))
	assert.Equal(t, []string{"2", "NaN", "OFF"}, strings.Fields(lines[2]))
	assert.NotContains(t, out.String(), "records shown")
}

func TestPrintBuffer_Truncated(t *testing.T) {
	buf := testBuffer(t, 1, "1,0,ON,2,0,OFF,3,0,ON")

	var out bytes.Buffer
	printBuffer(&out, buf)
	assert.Contains(t, out.String(), "(1 of 3 records shown")
	assert.NotContains(t, out.String(), "OFF")
}

func TestPrintCatalog(t *testing.T) {
	var out bytes.Buffer
	printCatalog(&out, gospecan.DefaultCatalog())
	s := out.String()
	assert.Contains(t, s, "TABLES")
	assert.Contains(t, s, "ATTRIBUTES")
	assert.Contains(t, s, "MEASUREMENTS")
	assert.Contains(t, s, "wimax-burst-summary")
	assert.Contains(t, s, "FETC:ZONE<Z>:BURS<BU>:SUMM:ALL?")
}

func TestPrintMeasurement(t *testing.T) {
	m, err := gospecan.DefaultCatalog().Measurement("ofdm-evm")
	require.NoError(t, err)

	var out bytes.Buffer
	printMeasurement(&out, m)
	s := out.String()
	assert.True(t, strings.HasPrefix(s, "ofdm-evm\n"))
	assert.Contains(t, s, "query:   FETC<Win>:EVM<SC?>:SYMB:ALL?")
	assert.Contains(t, s, "timeout: 15s")
	assert.Contains(t, s, "arg:     window -> Win [1..16]")
	assert.Contains(t, s, "field 1:")
}

func TestTraceFilter(t *testing.T) {
	defer func() { traceOp, traceSince, traceErrors = "", 0, false }()

	traceOp = "Query"
	traceErrors = true
	traceSince = time.Hour
	f, err := traceFilter()
	require.NoError(t, err)
	require.NotNil(t, f.Op)
	assert.Equal(t, trace.OpQuery, *f.Op)
	assert.True(t, f.OnlyErrors)
	require.NotNil(t, f.Since)
	assert.WithinDuration(t, time.Now().Add(-time.Hour), *f.Since, time.Minute)

	traceOp = "read"
	_, err = traceFilter()
	assert.ErrorContains(t, err, "unknown op")
}

func TestPrintEvents(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 30, 5, 250e6, time.UTC)
	events := []trace.Event{
		{Timestamp: ts, Op: trace.OpWrite, Command: "*CLS", Duration: time.Millisecond},
		{Timestamp: ts, Op: trace.OpQuery, Command: "FETC:LIST?", Reply: strings.Repeat("1,", 40), Duration: 2 * time.Millisecond},
		{Timestamp: ts, Op: trace.OpQuery, Command: "SYST:ERR?", Error: "i/o timeout"},
	}

	var out bytes.Buffer
	printEvents(&out, events)
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "12:30:05.250 WRITE")
	assert.Contains(t, lines[0], "*CLS")
	assert.Contains(t, lines[1], "... (80 bytes)")
	assert.Contains(t, lines[2], "!! i/o timeout")
}

func TestShell_LocalCommands(t *testing.T) {
	var out bytes.Buffer
	sh := &shell{out: &out}
	ctx := context.Background()

	assert.False(t, sh.exec(ctx, ""))
	assert.False(t, sh.exec(ctx, "help"))
	assert.Contains(t, out.String(), ":fetch <kind>")

	out.Reset()
	assert.False(t, sh.exec(ctx, ":bogus"))
	assert.Contains(t, out.String(), "Unknown command: bogus")

	assert.False(t, sh.exec(ctx, ":"))
	assert.True(t, sh.exec(ctx, "quit"))
	assert.True(t, sh.exec(ctx, ":q"))
}

func TestHostOf(t *testing.T) {
	assert.Equal(t, "fsw.lab", hostOf("fsw.lab:4880"))
	assert.Equal(t, "fsw.lab", hostOf("fsw.lab"))
	assert.Equal(t, "::1", hostOf("[::1]:4880"))
}
