package pathutils_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	pathutils "github.com/temirov/vaultsync/internal/utils/path"
)

func TestHomeExpanderExpand(testInstance *testing.T) {
	testCases := []struct {
		name          string
		candidatePath string
		homeError     error
		expectedPath  string
	}{
		{name: "tilde_only", candidatePath: "~", expectedPath: "/home/vault"},
		{name: "tilde_prefix", candidatePath: "~/bitsync/work", expectedPath: "/home/vault/bitsync/work"},
		{name: "absolute_path", candidatePath: " /tmp/bitsync ", expectedPath: "/tmp/bitsync"},
		{name: "other_user", candidatePath: "~alice/work", expectedPath: "~alice/work"},
		{name: "home_unavailable", candidatePath: "~/work", homeError: errors.New("no home"), expectedPath: "~/work"},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			expander := pathutils.NewHomeExpanderWithProvider(func() (string, error) {
				return "/home/vault", testCase.homeError
			})
			require.Equal(testInstance, testCase.expectedPath, expander.Expand(testCase.candidatePath))
		})
	}
}

func TestHomeExpanderNilReceiverTrims(testInstance *testing.T) {
	var expander *pathutils.HomeExpander
	require.Equal(testInstance, "~/work", expander.Expand(" ~/work "))
}
