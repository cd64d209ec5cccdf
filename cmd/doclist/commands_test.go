package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/nobletooth/doclist/pkg/docstore"
	"github.com/nobletooth/doclist/pkg/linkedlist"
	"github.com/nobletooth/doclist/pkg/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

// setupFileBackend points the CLI at a fresh file store and returns its path.
func setupFileBackend(t *testing.T, lockMode LockMode) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "lists.json")
	utils.SetTestFlags(t, map[string]string{
		"store_backend": string(StoreBackendFile),
		"store_path":    path,
		"list_field":    "queue",
		"node_groups":   "tasks, notes",
		"lock_mode":     string(lockMode),
		"lock_dir":      "",
		"config_file":   "",
	})
	return path
}

// runCommand executes the CLI and returns what it printed.
func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

// runAndDecode executes the CLI, requires it to succeed and decodes its output into `out`.
func runAndDecode(t *testing.T, out any, args ...string) {
	t.Helper()
	output, err := runCommand(t, args...)
	require.NoError(t, err, output)
	require.NoError(t, yaml.Unmarshal([]byte(output), out), output)
}

func TestCommands(t *testing.T) {
	setupFileBackend(t, LockModeFile)

	var header linkedlist.Header
	runAndDecode(t, &header, "init", "account-1")
	assert.Equal(t, linkedlist.Header{}, header)

	t.Run("init_twice", func(t *testing.T) {
		_, err := runCommand(t, "init", "account-1")
		assert.Error(t, err)
	})
	t.Run("push", func(t *testing.T) {
		for _, args := range [][]string{{"tasks", "a"}, {"notes", "b"}, {"tasks", "c"}} {
			var result mutationResult
			runAndDecode(t, &result, append([]string{"push", "account-1"}, args...)...)
			assert.True(t, result.OK)
		}
		var result mutationResult
		runAndDecode(t, &result, "push", "account-1", "tasks", "a")
		assert.False(t, result.OK) // Duplicate data id.
	})
	t.Run("push_generates_data_id", func(t *testing.T) {
		var result mutationResult
		runAndDecode(t, &result, "push", "account-2", "tasks")
		assert.False(t, result.OK) // The list doesn't exist.
		require.NotNil(t, result.Node)
		_, err := uuid.Parse(result.Node.DataID)
		assert.NoError(t, err)
	})
	t.Run("head_and_tail", func(t *testing.T) {
		var head struct {
			Head   *linkedlist.NodeRef `yaml:"head"`
			Length int64               `yaml:"length"`
		}
		runAndDecode(t, &head, "head", "account-1")
		assert.Equal(t, &linkedlist.NodeRef{Type: "tasks", DataID: "a"}, head.Head)
		assert.Equal(t, int64(3), head.Length)

		var tail struct {
			Tail *linkedlist.NodeRef `yaml:"tail"`
		}
		runAndDecode(t, &tail, "tail", "account-1")
		assert.Equal(t, &linkedlist.NodeRef{Type: "tasks", DataID: "c"}, tail.Tail)
	})
	t.Run("find", func(t *testing.T) {
		var found struct {
			Found bool                `yaml:"found"`
			Node  linkedlist.NodeView `yaml:"node"`
		}
		runAndDecode(t, &found, "find", "account-1", "notes", "b")
		assert.True(t, found.Found)
		assert.Equal(t, &linkedlist.NodeRef{Type: "tasks", DataID: "a"}, found.Node.Prev)
		assert.Equal(t, &linkedlist.NodeRef{Type: "tasks", DataID: "c"}, found.Node.Next)
		assert.Equal(t, int64(3), found.Node.Length)

		runAndDecode(t, &found, "find", "account-1", "notes", "zzz")
		assert.False(t, found.Found)
	})
	t.Run("move_and_walk", func(t *testing.T) {
		var result mutationResult
		runAndDecode(t, &result, "move", "account-1", "tasks", "a")
		assert.True(t, result.OK)

		var records []linkedlist.NodeRecord
		runAndDecode(t, &records, "walk", "account-1")
		var order []string
		for _, record := range records {
			order = append(order, record.DataID)
		}
		assert.Equal(t, []string{"b", "c", "a"}, order)

		runAndDecode(t, &records, "walk", "account-1", "--reverse")
		order = order[:0]
		for _, record := range records {
			order = append(order, record.DataID)
		}
		assert.Equal(t, []string{"a", "c", "b"}, order)

		runAndDecode(t, &records, "walk", "account-1", "--match", "c*")
		order = order[:0]
		for _, record := range records {
			order = append(order, record.DataID)
		}
		assert.Equal(t, []string{"c"}, order)
	})
	t.Run("remove_and_pop", func(t *testing.T) {
		var result mutationResult
		runAndDecode(t, &result, "remove", "account-1", "tasks", "c")
		assert.True(t, result.OK)
		runAndDecode(t, &result, "remove", "account-1", "tasks", "c")
		assert.False(t, result.OK)
		for _, want := range []bool{true, true, false} {
			runAndDecode(t, &result, "pop", "account-1")
			assert.Equal(t, want, result.OK)
		}
	})
	t.Run("check", func(t *testing.T) {
		output, err := runCommand(t, "check", "account-1")
		require.NoError(t, err, output)
		assert.Contains(t, output, "violations: []")
	})
	t.Run("unknown_node_type", func(t *testing.T) {
		_, err := runCommand(t, "push", "account-1", "images", "x")
		assert.ErrorIs(t, err, linkedlist.ErrUnknownNodeType)
	})
}

func TestCheckCommand_BrokenList(t *testing.T) {
	path := setupFileBackend(t, LockModeNone)
	_, err := runCommand(t, "init", "account-1")
	require.NoError(t, err)
	_, err = runCommand(t, "push", "account-1", "tasks", "a")
	require.NoError(t, err)

	// An out-of-band writer bumps the length without adding a record.
	store, err := docstore.NewFileStore(path)
	require.NoError(t, err)
	_, err = store.UpdateOne(context.Background(), docstore.M{docstore.IDField: "account-1"},
		docstore.M{"$inc": docstore.M{"queue.listLength": 1}})
	require.NoError(t, err)

	output, err := runCommand(t, "check", "account-1")
	assert.ErrorIs(t, err, errListBroken)
	assert.Contains(t, output, string(linkedlist.LengthMismatch))
}

func TestCommands_ConfigFile(t *testing.T) {
	setupFileBackend(t, LockModeNone)
	configPath := filepath.Join(t.TempDir(), "config.txtpb")
	require.NoError(t, os.WriteFile(configPath, []byte(`list { node_groups: "images" }`), 0o644))

	_, err := runCommand(t, "--config_file", configPath, "init", "account-1")
	require.NoError(t, err)
	var result mutationResult
	runAndDecode(t, &result, "--config_file", configPath, "push", "account-1", "images", "x")
	assert.True(t, result.OK)

	t.Run("command_line_wins", func(t *testing.T) {
		_, err := runCommand(t, "--config_file", configPath, "--node_groups", "tasks", "push", "account-1", "images", "y")
		assert.ErrorIs(t, err, linkedlist.ErrUnknownNodeType)
	})
}

func TestBackendFlags(t *testing.T) {
	for _, testCase := range []struct {
		name  string
		flags map[string]string
	}{
		{name: "unknown_backend", flags: map[string]string{"store_backend": "sqlite"}},
		{name: "unknown_lock_mode", flags: map[string]string{"lock_mode": "global"}},
		{name: "no_node_groups", flags: map[string]string{"node_groups": " , "}},
		{name: "mongo_file_lock_without_dir", flags: map[string]string{"store_backend": "mongo", "lock_mode": "file"}},
	} {
		t.Run(testCase.name, func(t *testing.T) {
			setupFileBackend(t, LockModeNone)
			utils.SetTestFlags(t, testCase.flags)
			_, err := openBackend(context.Background())
			assert.Error(t, err)
		})
	}
}

func TestVersionCommand(t *testing.T) {
	var info utils.BuildInfo
	runAndDecode(t, &info, "version")
	assert.Equal(t, utils.Version, info.Version)
}
