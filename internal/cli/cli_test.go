package cli_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/unifiedui/message-warehouse/internal/api/dto"
	"github.com/unifiedui/message-warehouse/internal/cli"
	"github.com/unifiedui/message-warehouse/internal/core/docdb"
	"github.com/unifiedui/message-warehouse/internal/core/notify"
	"github.com/unifiedui/message-warehouse/internal/mocks"
	"github.com/unifiedui/message-warehouse/internal/testutils/memdb"
	"github.com/unifiedui/message-warehouse/internal/warehouse"
)

func newEnvironment(client *memdb.Client, publisher notify.Publisher) *cli.Environment {
	if publisher == nil {
		publisher = notify.NewNoopPublisher()
	}
	return &cli.Environment{
		In:  strings.NewReader(""),
		Err: io.Discard,
		Connect: func(ctx context.Context, conn warehouse.ConnectionConfig) (docdb.Client, error) {
			return client, nil
		},
		NewPublisher: func(opts *cli.Options) (notify.Publisher, error) {
			return publisher, nil
		},
	}
}

func run(t *testing.T, env *cli.Environment, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	env.Out = &out
	cmd := cli.NewRootCommand(env)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func decodeLines(t *testing.T, output string) []dto.MessageResponse {
	t.Helper()

	var results []dto.MessageResponse
	for _, line := range strings.Split(strings.TrimSpace(output), "\n") {
		if line == "" {
			continue
		}
		var resp dto.MessageResponse
		require.NoError(t, json.Unmarshal([]byte(line), &resp))
		results = append(results, resp)
	}
	return results
}

func seedPoses(t *testing.T, env *cli.Environment) string {
	t.Helper()

	out, err := run(t, env, "insert", "-d", "db", "-c", "poses", "-m", `{"x": 1}`, "--meta", "robot=r2", "--meta", "seq=4")
	require.NoError(t, err)

	var inserted dto.InsertMessageResponse
	require.NoError(t, json.Unmarshal([]byte(out), &inserted))
	assert.Len(t, inserted.ID, 24)
	assert.Equal(t, "warehouse/db/poses/inserts", inserted.Topic)

	env.In = strings.NewReader(`{"x": 2}`)
	_, err = run(t, env, "insert", "-d", "db", "-c", "poses", "--meta", "robot=r3", "--meta", "seq=5")
	require.NoError(t, err)

	return inserted.ID
}

func TestInsertAndFind(t *testing.T) {
	env := newEnvironment(memdb.NewClient(), nil)
	id := seedPoses(t, env)

	out, err := run(t, env, "find", "-d", "db", "-c", "poses", "-w", "robot=r2")
	require.NoError(t, err)

	results := decodeLines(t, out)
	require.Len(t, results, 1)
	assert.Equal(t, id, results[0].ID)
	assert.Equal(t, 4.0, results[0].Metadata["seq"])
	assert.JSONEq(t, `{"x": 1}`, string(results[0].Message))

	out, err = run(t, env, "find", "-d", "db", "-c", "poses", "--sort", "seq", "--desc", "--metadata-only")
	require.NoError(t, err)

	results = decodeLines(t, out)
	require.Len(t, results, 2)
	assert.Equal(t, "r3", results[0].Metadata["robot"])
	assert.Equal(t, "r2", results[1].Metadata["robot"])
	assert.Empty(t, results[1].Message)

	out, err = run(t, env, "find", "-d", "db", "-c", "poses", "-w", "seq>4", "--one")
	require.NoError(t, err)
	results = decodeLines(t, out)
	require.Len(t, results, 1)
	assert.JSONEq(t, `{"x": 2}`, string(results[0].Message))

	_, err = run(t, env, "find", "-d", "db", "-c", "poses", "-w", "robot=r9", "--one")
	assert.Error(t, err)
}

func TestFindByGeneratedFields(t *testing.T) {
	env := newEnvironment(memdb.NewClient(), nil)
	id := seedPoses(t, env)

	out, err := run(t, env, "find", "-d", "db", "-c", "poses", "-w", "_id="+id, "--metadata-only")
	require.NoError(t, err)
	results := decodeLines(t, out)
	require.Len(t, results, 1)
	assert.Equal(t, id, results[0].ID)

	out, err = run(t, env, "find", "-d", "db", "-c", "poses", "-w", "creation_time>2000-01-01T00:00:00Z", "--metadata-only")
	require.NoError(t, err)
	assert.Len(t, decodeLines(t, out), 2)

	_, err = run(t, env, "update", "-d", "db", "-c", "poses", "-w", "_id="+id, "--set", "status=done")
	require.NoError(t, err)

	out, err = run(t, env, "remove", "-d", "db", "-c", "poses", "-w", "_id="+id)
	require.NoError(t, err)
	assert.JSONEq(t, `{"removed": 1}`, out)

	_, err = run(t, env, "find", "-d", "db", "-c", "poses", "-w", "_id=mine")
	assert.Error(t, err)
}

func TestRemoveAndCount(t *testing.T) {
	env := newEnvironment(memdb.NewClient(), nil)
	seedPoses(t, env)

	out, err := run(t, env, "count", "-d", "db", "-c", "poses")
	require.NoError(t, err)
	assert.Equal(t, "2\n", out)

	_, err = run(t, env, "remove", "-d", "db", "-c", "poses")
	assert.ErrorContains(t, err, "--all")

	out, err = run(t, env, "remove", "-d", "db", "-c", "poses", "-w", "seq>=5")
	require.NoError(t, err)
	assert.JSONEq(t, `{"removed": 1}`, out)

	out, err = run(t, env, "count", "-d", "db", "-c", "poses")
	require.NoError(t, err)
	assert.Equal(t, "1\n", out)

	out, err = run(t, env, "remove", "-d", "db", "-c", "poses", "--all")
	require.NoError(t, err)
	assert.JSONEq(t, `{"removed": 1}`, out)
}

func TestUpdate(t *testing.T) {
	env := newEnvironment(memdb.NewClient(), nil)
	seedPoses(t, env)

	_, err := run(t, env, "update", "-d", "db", "-c", "poses", "-w", "robot=r2", "--set", "status=done")
	require.NoError(t, err)

	out, err := run(t, env, "find", "-d", "db", "-c", "poses", "-w", "status=done", "--metadata-only")
	require.NoError(t, err)
	results := decodeLines(t, out)
	require.Len(t, results, 1)
	assert.Equal(t, "r2", results[0].Metadata["robot"])

	_, err = run(t, env, "update", "-d", "db", "-c", "poses", "-w", "robot=r9", "--set", "status=done")
	assert.Error(t, err)

	_, err = run(t, env, "update", "-d", "db", "-c", "poses", "-w", "robot=r2")
	assert.ErrorContains(t, err, "--set")
}

func TestIndexAndSchemas(t *testing.T) {
	client := memdb.NewClient()
	env := newEnvironment(client, nil)

	_, err := run(t, env, "index", "-d", "db", "-c", "poses", "seq")
	require.NoError(t, err)
	assert.Contains(t, client.DB("db").Coll("poses").Indexes(), "idx_seq_1")

	out, err := run(t, env, "schemas", "-d", "db")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "NAME"))
	assert.Contains(t, lines[1], "poses")
	assert.Contains(t, lines[1], "google.protobuf.Struct")
}

func TestInsertPublishesNotification(t *testing.T) {
	publisher := new(mocks.MockPublisher)
	publisher.On("Publish", mock.Anything, "warehouse/db/poses/inserts", mock.Anything).Return(nil).Once()
	publisher.On("Close").Return(nil)

	env := newEnvironment(memdb.NewClient(), publisher)
	_, err := run(t, env, "insert", "-d", "db", "-c", "poses", "-m", `{}`, "--meta", "robot=r2")

	require.NoError(t, err)
	publisher.AssertExpectations(t)
}

func TestInsert_NotificationsUnavailable(t *testing.T) {
	client := memdb.NewClient()
	env := newEnvironment(client, nil)
	env.NewPublisher = func(opts *cli.Options) (notify.Publisher, error) {
		return nil, errors.New("dial tcp localhost:6379: connection refused")
	}

	out, err := run(t, env, "insert", "-d", "db", "-c", "poses", "-m", `{"x": 1}`, "--notify", "redis")

	require.NoError(t, err)
	var inserted dto.InsertMessageResponse
	require.NoError(t, json.Unmarshal([]byte(out), &inserted))
	assert.Len(t, inserted.ID, 24)
	assert.Len(t, client.DB("db").Coll("poses").Docs(), 1)

	_, err = run(t, env, "watch", "-d", "db", "-c", "poses", "--max", "1")
	assert.ErrorContains(t, err, "connection refused")
}

func TestInsertValidation(t *testing.T) {
	env := newEnvironment(memdb.NewClient(), nil)

	tests := []struct {
		name string
		args []string
	}{
		{name: "missing collection", args: []string{"insert", "-d", "db", "-m", `{}`}},
		{name: "not an object", args: []string{"insert", "-d", "db", "-c", "poses", "-m", `[1]`}},
		{name: "empty message", args: []string{"insert", "-d", "db", "-c", "poses"}},
		{name: "reserved metadata", args: []string{"insert", "-d", "db", "-c", "poses", "-m", `{}`, "--meta", "_id=1"}},
		{name: "bad pair", args: []string{"insert", "-d", "db", "-c", "poses", "-m", `{}`, "--meta", "robot"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env.In = strings.NewReader("")
			_, err := run(t, env, tt.args...)
			assert.Error(t, err)
		})
	}
}

func TestWatch(t *testing.T) {
	sub := mocks.NewMockSubscription(2)
	sub.On("Close").Return(nil)
	sub.Send(notify.Event{Topic: "warehouse/db/poses/inserts", Payload: []byte(`{"robot":"r2"}`)})
	sub.Send(notify.Event{Topic: "warehouse/db/poses/inserts", Payload: []byte(`{"robot":"r3"}`)})

	publisher := new(mocks.MockPublisher)
	publisher.On("Subscribe", mock.Anything, "warehouse/db/poses/inserts").Return(sub, nil)
	publisher.On("Close").Return(nil)

	env := newEnvironment(memdb.NewClient(), publisher)
	out, err := run(t, env, "watch", "-d", "db", "-c", "poses", "--max", "2")

	require.NoError(t, err)
	assert.Equal(t, "{\"robot\":\"r2\"}\n{\"robot\":\"r3\"}\n", out)
	publisher.AssertExpectations(t)
	sub.AssertExpectations(t)
}

func TestWatch_NotificationsDisabled(t *testing.T) {
	env := newEnvironment(memdb.NewClient(), nil)

	_, err := run(t, env, "watch", "-d", "db", "-c", "poses", "--max", "1")

	assert.ErrorContains(t, err, "--notify redis")
	assert.ErrorIs(t, err, notify.ErrSubscribeUnsupported)
}
