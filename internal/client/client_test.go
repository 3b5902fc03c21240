package client

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ThomasHabets/hamtransfer/internal/directory"
	"github.com/ThomasHabets/hamtransfer/internal/framer"
	"github.com/ThomasHabets/hamtransfer/internal/logging"
	"github.com/ThomasHabets/hamtransfer/internal/metrics"
	"github.com/ThomasHabets/hamtransfer/internal/server"
	"github.com/ThomasHabets/hamtransfer/internal/transport"
)

func hashOf(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// startPair wires a server.Engine and a client.Engine over an in-process
// transport.Pair, returning the client, the server-facing Router (for
// injecting raw frames as if from the server/environment), and a context
// cancelled at test end.
func startPair(t *testing.T, dir string, packetSize, repair int, timeout time.Duration, dropRate float32) (*Engine, transport.Router, context.Context) {
	t.Helper()
	idx, err := directory.New(dir)
	require.NoError(t, err)

	serverRouter, clientRouter := transport.Pair(64)
	log := logging.New(logrus.ErrorLevel, os.Stderr)

	eng := server.New(idx, serverRouter, transport.SimpleCodec{}, "SERVER", packetSize, repair, log, metrics.NewServer())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = eng.Run(ctx) }()

	c := New(clientRouter, transport.SimpleCodec{}, "CLIENT", "SERVER", timeout, dropRate, log, metrics.NewClient())
	require.NoError(t, c.Start(ctx))
	return c, serverRouter, ctx
}

func TestListEmptyDirectory(t *testing.T) {
	dir := t.TempDir()
	c, _, ctx := startPair(t, dir, 200, 10, time.Second, 0)
	opCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	entries, err := c.List(opCtx)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestListWithEntries(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "hello.txt"), []byte("Hello\n"), 0o644))
	c, _, ctx := startPair(t, dir, 200, 10, time.Second, 0)
	opCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	entries, err := c.List(opCtx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "hello.txt", entries[0].Name)
}

func TestMetaReportsSizeAndK(t *testing.T) {
	dir := t.TempDir()
	data := []byte("Hello\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "hello.txt"), data, 0o644))
	c, _, ctx := startPair(t, dir, 200, 10, time.Second, 0)
	opCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	reply, err := c.Meta(opCtx, hashOf(data))
	require.NoError(t, err)
	assert.Equal(t, 1, reply.K)
	assert.Equal(t, int64(len(data)), reply.Size)
}

func TestDownloadSmallFileNoLoss(t *testing.T) {
	dir := t.TempDir()
	data := []byte("Hello\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "hello.txt"), data, 0o644))
	c, _, ctx := startPair(t, dir, 200, 5, time.Second, 0)
	opCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	out, err := c.Download(opCtx, hashOf(data))
	require.NoError(t, err)
	assert.Equal(t, data, out)
}

func TestDownloadLargerFileNoLoss(t *testing.T) {
	dir := t.TempDir()
	data := make([]byte, 3684)
	for i := range data {
		data[i] = byte(i % 251)
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "big.bin"), data, 0o644))
	c, _, ctx := startPair(t, dir, 200, 50, time.Second, 0)
	opCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	out, err := c.Download(opCtx, hashOf(data))
	require.NoError(t, err)
	assert.Equal(t, data, out)
}

func TestDownloadWithLossEventuallyCompletes(t *testing.T) {
	dir := t.TempDir()
	data := make([]byte, 2000)
	for i := range data {
		data[i] = byte(i % 200)
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "lossy.bin"), data, 0o644))
	// Short timeout relative to the server's pacing so several resend
	// cycles happen before completion (§8 Loss tolerance).
	c, _, ctx := startPair(t, dir, 50, 30, 150*time.Millisecond, 0.3)
	opCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	out, err := c.Download(opCtx, hashOf(data))
	require.NoError(t, err)
	assert.Equal(t, data, out)
}

func TestDownloadZeroSizeFileCompletesImmediately(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "empty.bin"), nil, 0o644))
	c, _, ctx := startPair(t, dir, 200, 10, time.Second, 0)
	opCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	out, err := c.Download(opCtx, hashOf(nil))
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestDownloadWrongHashNeverCompletes(t *testing.T) {
	dir := t.TempDir()
	c, _, ctx := startPair(t, dir, 200, 10, 100*time.Millisecond, 0)
	opCtx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()

	_, err := c.Download(opCtx, hashOf([]byte("nothing here")))
	assert.Error(t, err) // context deadline exceeded: server never replies to an unknown hash
}

func TestDownloadTagIsolation(t *testing.T) {
	// A data frame for a foreign tag must not perturb an in-flight download:
	// injecting bogus symbols under an unrelated tag must not corrupt the
	// decoder or satisfy it prematurely (§4.2, §8 Tag isolation).
	dir := t.TempDir()
	data := []byte("isolate me")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "iso.bin"), data, 0o644))
	c, serverRouter, ctx := startPair(t, dir, 200, 5, time.Second, 0)
	opCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	stop := make(chan struct{})
	t.Cleanup(func() { close(stop) })
	go func() {
		foreignTag := uint16(0xBEEF)
		junk := framer.Marshal(foreignTag, 0, []byte("not the real transfer"))
		for {
			select {
			case <-stop:
				return
			default:
			}
			pkt := transport.Packet{Src: "SERVER", Dst: "CLIENT", SetFCS: true, UI: transport.UI{PID: 0xF0, Payload: junk}}
			frame, err := transport.SimpleCodec{}.Serialize(pkt)
			if err != nil {
				return
			}
			if err := serverRouter.Send(opCtx, frame); err != nil {
				return
			}
			time.Sleep(5 * time.Millisecond)
		}
	}()

	out, err := c.Download(opCtx, hashOf(data))
	require.NoError(t, err)
	assert.Equal(t, data, out)
}
