package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/roach88/archiver/internal/config"
	"github.com/roach88/archiver/internal/lock"
	"github.com/roach88/archiver/internal/repo"
)

func TestOutputFormatter_JSONSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	data := map[string]string{"result": "success"}
	err := formatter.Success(data)
	require.NoError(t, err)

	var resp CLIResponse
	err = json.Unmarshal(buf.Bytes(), &resp)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Status)
	assert.NotNil(t, resp.Data)
}

func TestOutputFormatter_JSONError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	err := formatter.Error(ErrCodeNotFound, "no archived item", nil)
	require.NoError(t, err)

	var resp CLIResponse
	err = json.Unmarshal(buf.Bytes(), &resp)
	require.NoError(t, err)
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "E101", resp.Error.Code)
	assert.Equal(t, "no archived item", resp.Error.Message)
}

func TestOutputFormatter_YAMLSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "yaml",
		Writer: buf,
	}

	err := formatter.Success(ConfigResult{{Key: "size", Value: "1024"}})
	require.NoError(t, err)

	assert.Contains(t, buf.String(), "status: ok\n")

	var resp struct {
		Status string        `yaml:"status"`
		Data   []ConfigEntry `yaml:"data"`
	}
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, []ConfigEntry{{Key: "size", Value: "1024"}}, resp.Data)
}

func TestOutputFormatter_TextSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "text",
		Writer: buf,
	}

	err := formatter.Success("nothing to do")
	require.NoError(t, err)
	assert.Equal(t, "nothing to do\n", buf.String())
}

func TestOutputFormatter_TextUsesTextWriter(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "text",
		Writer: buf,
	}

	err := formatter.Success(ConfigResult{{Key: "size", Value: "5368709120"}})
	require.NoError(t, err)
	assert.Equal(t, "config.size=5368709120\n", buf.String())
}

func TestOutputFormatter_TextErrorGoesToErrWriter(t *testing.T) {
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format:    "text",
		Writer:    out,
		ErrWriter: errOut,
	}

	details := map[string]string{"archive": "a-1.tar.gz"}
	err := formatter.Error("E001", "something broke", details)
	require.NoError(t, err)
	assert.Empty(t, out.String())
	assert.Contains(t, errOut.String(), "Error [E001]: something broke")
	assert.Contains(t, errOut.String(), "Details:")
}

func TestItemListText(t *testing.T) {
	ts := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	list := ItemList{
		{Name: "a", Version: 1, Timestamp: ts, Status: "Deleted", Source: "/src/a", Archive: "a-1.tar.gz", Size: 10},
		{Name: "b", Version: 12, Timestamp: ts, Status: "Archived", Source: "/src/b", Archive: "b-12.tar.gz", Size: 20},
	}

	buf := &bytes.Buffer{}
	require.NoError(t, list.WriteText(buf))
	assert.Equal(t,
		"#001   a 1 2026-03-04 05:06:07 Deleted /src/a a-1.tar.gz 10\n"+
			"#002   b 12 2026-03-04 05:06:07 Archived /src/b b-12.tar.gz 20\n",
		buf.String())
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitSuccess, GetExitCode(nil))
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("plain")))
	assert.Equal(t, ExitCommandError, GetExitCode(NewExitError(ExitCommandError, "bad flag")))

	wrapped := fmt.Errorf("outer: %w", WrapExitError(ExitCommandError, "bad flag", errors.New("inner")))
	assert.Equal(t, ExitCommandError, GetExitCode(wrapped))
}

func TestExitErrorMessage(t *testing.T) {
	err := WrapExitError(ExitFailure, "restore failed", repo.ErrNotFound)
	assert.Equal(t, "restore failed: no archived item", err.Error())
	assert.ErrorIs(t, err, repo.ErrNotFound)

	assert.Equal(t, "bare", NewExitError(ExitFailure, "bare").Error())
}

func TestErrorCode(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{fmt.Errorf("x: %w", repo.ErrNotFound), ErrCodeNotFound},
		{repo.ErrAmbiguous, ErrCodeAmbiguous},
		{fmt.Errorf("archive: %w: %w", repo.ErrCompress, errors.New("tar")), ErrCodeCompress},
		{repo.ErrInvalidSource, ErrCodeInvalidSource},
		{config.ErrUnknownKey, ErrCodeUnknownKey},
		{config.ErrInvalidSize, ErrCodeInvalidSize},
		{lock.ErrLockFile, ErrCodeLock},
		{errors.New("disk full"), ErrCodeGeneric},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, errorCode(tt.err))
		})
	}
}
