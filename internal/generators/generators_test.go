package generators

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jberkowitz/tibbar/internal/resource"
)

func TestGetKnownGeneratorsSucceed(t *testing.T) {
	for _, name := range Names() {
		factory, err := Get(name)
		require.NoError(t, err)
		require.NotNil(t, factory)

		universe := map[resource.Namespace][]resource.Resource{
			resource.GPR: {resource.Reg(resource.GPR, 1), resource.Reg(resource.GPR, 2)},
			resource.FPR: {resource.Reg(resource.FPR, 1), resource.Reg(resource.FPR, 2)},
		}
		seq := factory(resource.NewSpace(universe, nil))
		require.NotNil(t, seq)
	}
}

func TestGetUnknownGeneratorFails(t *testing.T) {
	_, err := Get("does-not-exist")
	require.Error(t, err)
}

func TestNamesIsSorted(t *testing.T) {
	names := Names()
	for i := 1; i < len(names); i++ {
		require.LessOrEqual(t, names[i-1], names[i])
	}
}
