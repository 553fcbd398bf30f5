package exploits_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/collinmckay/vulnsuite/internal/exploits"
)

func TestFilterDropsUnknownLabels(t *testing.T) {
	got := exploits.Filter([]string{"Default credentials", "bogus", "Other"})
	assert.Equal(t, []string{"Default credentials", "Other"}, got)
}

func TestFilterIsIdempotentOnSupersets(t *testing.T) {
	superset := append([]string{"bogus", "made-up"}, exploits.Categories...)
	once := exploits.Filter(superset)
	twice := exploits.Filter(once)
	assert.Equal(t, exploits.Categories, once)
	assert.Equal(t, once, twice)
}

func TestFilterEmpty(t *testing.T) {
	assert.Empty(t, exploits.Filter(nil))
	assert.Empty(t, exploits.Filter([]string{"nonsense"}))
}

func TestCommandArgLowercasesExplicitList(t *testing.T) {
	got := exploits.CommandArg([]string{"Default credentials", "Other"})
	assert.Equal(t, "default credentials,other", got)
}

func TestCommandArgDefaultsToFullCatalog(t *testing.T) {
	got := exploits.CommandArg(nil)
	assert.Equal(t, strings.Join(exploits.Categories, ","), got)
	// The fallback keeps the catalog's original casing.
	assert.Contains(t, got, "Default credentials")
}
