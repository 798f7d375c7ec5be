package versioning

import (
	"otapush/internal/models"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rel(enabled, mandatory bool) models.ReleaseInfo {
	return models.ReleaseInfo{Enabled: enabled, Mandatory: mandatory}
}

func mustIncremental(t *testing.T, h models.ReleaseHistory) *IncrementalVersioning {
	t.Helper()
	v, err := NewIncremental(h)
	require.NoError(t, err)
	return v
}

func mustSemantic(t *testing.T, h models.ReleaseHistory) *SemanticVersioning {
	t.Helper()
	v, err := NewSemantic(h)
	require.NoError(t, err)
	return v
}

func TestConstruction(t *testing.T) {
	t.Run("nil history", func(t *testing.T) {
		_, err := NewIncremental(nil)
		assert.ErrorIs(t, err, ErrInvalidArgument)

		_, err = NewSemantic(nil)
		assert.ErrorIs(t, err, ErrInvalidArgument)
	})

	t.Run("nil strategy", func(t *testing.T) {
		_, err := newEngine(nil, models.ReleaseHistory{})
		assert.ErrorIs(t, err, ErrInvalidArgument)
	})

	t.Run("no concrete scheme", func(t *testing.T) {
		_, err := New("", models.ReleaseHistory{})
		assert.ErrorIs(t, err, ErrAbstractInstantiation)

		var e Engine
		_, err = e.FindLatestRelease()
		assert.ErrorIs(t, err, ErrAbstractInstantiation)
		_, err = e.CheckIsMandatory("1")
		assert.ErrorIs(t, err, ErrAbstractInstantiation)
		_, err = e.ShouldRollback("1")
		assert.ErrorIs(t, err, ErrAbstractInstantiation)
		_, err = e.ShouldRollbackToBinary("1")
		assert.ErrorIs(t, err, ErrAbstractInstantiation)

		var s SemanticVersioning
		_, err = s.FindLatestRelease()
		assert.ErrorIs(t, err, ErrAbstractInstantiation)
	})

	t.Run("unknown kind", func(t *testing.T) {
		_, err := New("calendar", models.ReleaseHistory{})
		assert.ErrorIs(t, err, ErrInvalidArgument)
	})

	t.Run("invalid keys", func(t *testing.T) {
		_, err := NewIncremental(models.ReleaseHistory{"1.0.0": rel(true, false)})
		assert.ErrorIs(t, err, ErrInvalidArgument)

		_, err = NewSemantic(models.ReleaseHistory{"7": rel(true, false)})
		assert.ErrorIs(t, err, ErrInvalidArgument)
	})

	t.Run("factory returns concrete types", func(t *testing.T) {
		v, err := New(KindSemantic, models.ReleaseHistory{"1.0.0": rel(true, false)})
		require.NoError(t, err)
		_, ok := v.(*SemanticVersioning)
		assert.True(t, ok)
		assert.Equal(t, KindSemantic, v.Strategy().Kind())

		v, err = New(KindIncremental, models.ReleaseHistory{"1": rel(true, false)})
		require.NoError(t, err)
		_, ok = v.(*IncrementalVersioning)
		assert.True(t, ok)
	})

	t.Run("input history is not mutated", func(t *testing.T) {
		rollout := 50.0
		h := models.ReleaseHistory{"1": {Enabled: true, Rollout: &rollout}}
		v := mustIncremental(t, h)
		latest, err := v.FindLatestRelease()
		require.NoError(t, err)
		*latest.Info.Rollout = 10
		assert.Equal(t, 50.0, *h["1"].Rollout)
	})
}

func TestFindLatestRelease(t *testing.T) {
	t.Run("empty history", func(t *testing.T) {
		_, err := mustSemantic(t, models.ReleaseHistory{}).FindLatestRelease()
		assert.ErrorIs(t, err, ErrNoReleaseFound)
	})

	t.Run("all disabled", func(t *testing.T) {
		_, err := mustIncremental(t, models.ReleaseHistory{"1": rel(false, false)}).FindLatestRelease()
		assert.ErrorIs(t, err, ErrNoReleaseFound)
	})

	t.Run("incremental scenario", func(t *testing.T) {
		v := mustIncremental(t, models.ReleaseHistory{
			"1": rel(true, false),
			"2": rel(true, false),
			"3": rel(true, true),
		})
		latest, err := v.FindLatestRelease()
		require.NoError(t, err)
		assert.Equal(t, "3", latest.Version)
		assert.True(t, latest.Info.Mandatory)
	})

	t.Run("numeric not lexical", func(t *testing.T) {
		v := mustIncremental(t, models.ReleaseHistory{
			"9":  rel(true, false),
			"10": rel(true, false),
		})
		latest, err := v.FindLatestRelease()
		require.NoError(t, err)
		assert.Equal(t, "10", latest.Version)
	})

	t.Run("ignores disabled", func(t *testing.T) {
		h1 := models.ReleaseHistory{
			"1.0.0": {Enabled: true, DownloadURL: "R1", PackageHash: "P1"},
			"1.1.0": {Enabled: false, DownloadURL: "R2", PackageHash: "P2"},
		}
		latest, err := mustSemantic(t, h1).FindLatestRelease()
		require.NoError(t, err)
		assert.Equal(t, "1.0.0", latest.Version)
		assert.Equal(t, "R1", latest.Info.DownloadURL)

		h2 := h1.Clone()
		h2["1.1.1"] = models.ReleaseInfo{Enabled: true, Mandatory: true, DownloadURL: "R3", PackageHash: "P3"}
		latest, err = mustSemantic(t, h2).FindLatestRelease()
		require.NoError(t, err)
		assert.Equal(t, "1.1.1", latest.Version)
		assert.Equal(t, "P3", latest.Info.PackageHash)
	})

	t.Run("enabling the highest version changes the result", func(t *testing.T) {
		h := models.ReleaseHistory{"1.0.0": rel(true, false), "2.0.0": rel(false, false)}
		latest, err := mustSemantic(t, h).FindLatestRelease()
		require.NoError(t, err)
		assert.Equal(t, "1.0.0", latest.Version)

		h["2.0.0"] = rel(true, false)
		latest, err = mustSemantic(t, h).FindLatestRelease()
		require.NoError(t, err)
		assert.Equal(t, "2.0.0", latest.Version)
	})

	t.Run("pre-release sorts before release", func(t *testing.T) {
		h := models.ReleaseHistory{
			"1.2.0-rc.1": rel(true, false),
			"1.2.0":      rel(true, false),
			"1.2.0-rc.0": rel(true, false),
		}
		v := mustSemantic(t, h)
		sorted := v.Sorted()
		require.Len(t, sorted, 3)
		assert.Equal(t, "1.2.0", sorted[0].Version)
		assert.Equal(t, "1.2.0-rc.1", sorted[1].Version)
		assert.Equal(t, "1.2.0-rc.0", sorted[2].Version)
	})
}

func TestCheckIsMandatory_Incremental(t *testing.T) {
	tests := []struct {
		name     string
		history  models.ReleaseHistory
		runtime  string
		expected bool
	}{
		{
			name:     "first release only",
			history:  models.ReleaseHistory{"1": rel(true, false)},
			runtime:  "1",
			expected: false,
		},
		{
			name:     "only optional release after runtime",
			history:  models.ReleaseHistory{"1": rel(true, false), "2": rel(true, false)},
			runtime:  "1",
			expected: false,
		},
		{
			name:     "optional release after installed mandatory",
			history:  models.ReleaseHistory{"1": rel(true, false), "2": rel(true, true), "3": rel(true, false)},
			runtime:  "2",
			expected: false,
		},
		{
			name:     "mandatory release exists",
			history:  models.ReleaseHistory{"1": rel(true, false), "2": rel(true, true)},
			runtime:  "1",
			expected: true,
		},
		{
			name:     "mandatory between runtime and latest",
			history:  models.ReleaseHistory{"1": rel(true, false), "2": rel(true, true), "3": rel(true, false)},
			runtime:  "1",
			expected: true,
		},
		{
			name:     "equal to latest mandatory is not forced",
			history:  models.ReleaseHistory{"1": rel(true, false), "2": rel(true, false), "3": rel(true, true)},
			runtime:  "3",
			expected: false,
		},
		{
			name:     "binary install with mandatory history",
			history:  models.ReleaseHistory{"1": rel(true, false), "2": rel(true, true)},
			runtime:  "",
			expected: true,
		},
		{
			name:     "binary install without mandatory history",
			history:  models.ReleaseHistory{"1": rel(true, false), "2": rel(true, false)},
			runtime:  "",
			expected: false,
		},
		{
			name:     "rollback is mandatory",
			history:  models.ReleaseHistory{"1": rel(true, false)},
			runtime:  "2",
			expected: true,
		},
		{
			name:     "disabled mandatory is ignored",
			history:  models.ReleaseHistory{"1": rel(true, false), "2": rel(false, true), "3": rel(true, false)},
			runtime:  "1",
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := mustIncremental(t, tt.history).CheckIsMandatory(tt.runtime)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestCheckIsMandatory_IncrementalScenario(t *testing.T) {
	all := models.ReleaseHistory{
		"1": rel(true, false),
		"2": rel(true, true),
		"3": rel(true, false),
		"4": rel(true, true),
		"5": rel(true, false),
	}
	withDisabled := models.ReleaseHistory{
		"1": rel(true, false),
		"2": rel(true, true),
		"3": rel(false, false),
		"4": rel(true, true),
		"5": rel(false, false),
	}

	expectedAll := map[string]bool{"1": true, "2": true, "3": true, "4": false, "5": false}
	for runtime, want := range expectedAll {
		got, err := mustIncremental(t, all).CheckIsMandatory(runtime)
		require.NoError(t, err)
		assert.Equal(t, want, got, "runtime %s", runtime)
	}

	// 5 is disabled, so a device on 5 must roll back to 4.
	expectedDisabled := map[string]bool{"1": true, "2": true, "3": true, "4": false, "5": true}
	for runtime, want := range expectedDisabled {
		got, err := mustIncremental(t, withDisabled).CheckIsMandatory(runtime)
		require.NoError(t, err)
		assert.Equal(t, want, got, "runtime %s", runtime)
	}
}

func TestCheckIsMandatory_Semantic(t *testing.T) {
	h := models.ReleaseHistory{
		"1.0.0": rel(true, false),
		"1.0.1": rel(true, true),
		"1.1.0": rel(true, false),
		"1.1.1": rel(true, true),
		"1.2.0": rel(true, false),
	}
	expected := map[string]bool{
		"1.0.0": true,
		"1.0.1": true,
		"1.1.0": true,
		"1.1.1": false,
		"1.2.0": false,
	}
	for runtime, want := range expected {
		got, err := mustSemantic(t, h).CheckIsMandatory(runtime)
		require.NoError(t, err)
		assert.Equal(t, want, got, "runtime %s", runtime)
	}

	disabled := h.Clone()
	disabled["1.1.0"] = rel(false, false)
	disabled["1.2.0"] = rel(false, false)
	got, err := mustSemantic(t, disabled).CheckIsMandatory("1.2.0")
	require.NoError(t, err)
	assert.True(t, got)

	t.Run("disabled middle", func(t *testing.T) {
		v := mustSemantic(t, models.ReleaseHistory{
			"1.0.0": rel(true, false),
			"1.1.0": rel(false, false),
			"1.1.1": rel(true, true),
		})
		latest, err := v.FindLatestRelease()
		require.NoError(t, err)
		assert.Equal(t, "1.1.1", latest.Version)

		got, err := v.CheckIsMandatory("1.0.0")
		require.NoError(t, err)
		assert.True(t, got)
	})

	t.Run("invalid runtime", func(t *testing.T) {
		_, err := mustSemantic(t, h).CheckIsMandatory("latest")
		assert.ErrorIs(t, err, ErrInvalidArgument)
	})

	t.Run("runtime with empty history", func(t *testing.T) {
		_, err := mustSemantic(t, models.ReleaseHistory{}).CheckIsMandatory("1.0.0")
		assert.ErrorIs(t, err, ErrNoReleaseFound)
	})
}

func TestShouldRollback(t *testing.T) {
	v := mustIncremental(t, models.ReleaseHistory{"1": rel(true, false)})

	got, err := v.ShouldRollback("2")
	require.NoError(t, err)
	assert.True(t, got)

	got, err = v.ShouldRollback("1")
	require.NoError(t, err)
	assert.False(t, got)

	got, err = v.ShouldRollback("")
	require.NoError(t, err)
	assert.False(t, got)

	// No history at all still reports no rollback for a binary install.
	got, err = mustIncremental(t, models.ReleaseHistory{}).ShouldRollback("")
	require.NoError(t, err)
	assert.False(t, got)

	mandatory, err := v.CheckIsMandatory("2")
	require.NoError(t, err)
	assert.True(t, mandatory)
}

func TestShouldRollbackToBinary(t *testing.T) {
	t.Run("incremental", func(t *testing.T) {
		v := mustIncremental(t, models.ReleaseHistory{"1": rel(true, false), "2": rel(false, true)})

		got, err := v.ShouldRollbackToBinary("2")
		require.NoError(t, err)
		assert.True(t, got)

		got, err = v.ShouldRollbackToBinary("1")
		require.NoError(t, err)
		assert.False(t, got)

		got, err = v.ShouldRollbackToBinary("")
		require.NoError(t, err)
		assert.False(t, got)
	})

	tests := []struct {
		name     string
		history  models.ReleaseHistory
		runtime  string
		expected bool
	}{
		{
			name:     "no rollback needed",
			history:  models.ReleaseHistory{"1.0.0": rel(true, false)},
			runtime:  "1.0.0",
			expected: false,
		},
		{
			name:     "running an enabled middle release",
			history:  models.ReleaseHistory{"1.0.0": rel(true, false), "1.1.0": rel(true, false), "1.2.0": rel(true, false)},
			runtime:  "1.1.0",
			expected: false,
		},
		{
			name:     "everything above the binary disabled",
			history:  models.ReleaseHistory{"1.0.0": rel(true, false), "1.1.0": rel(false, false), "1.2.0": rel(false, false)},
			runtime:  "1.2.0",
			expected: true,
		},
		{
			name:     "pre-release binary",
			history:  models.ReleaseHistory{"1.2.0-rc.0": rel(true, false)},
			runtime:  "1.2.0-rc.2",
			expected: true,
		},
		{
			name:     "enabled release between binary and runtime",
			history:  models.ReleaseHistory{"1.0.0": rel(true, false), "1.1.0": rel(true, false)},
			runtime:  "1.2.0",
			expected: false,
		},
		{
			name:     "enabled pre-release between binary and runtime",
			history:  models.ReleaseHistory{"1.2.0-rc.0": rel(true, false), "1.2.0-rc.1": rel(true, false)},
			runtime:  "1.2.0-rc.2",
			expected: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := mustSemantic(t, tt.history).ShouldRollbackToBinary(tt.runtime)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestShouldRollbackToLatestMajorVersion(t *testing.T) {
	tests := []struct {
		name     string
		history  models.ReleaseHistory
		runtime  string
		expected bool
	}{
		{
			name:     "rollback onto major release",
			history:  models.ReleaseHistory{"2.0.0": rel(true, false), "2.1.0": rel(false, false)},
			runtime:  "2.1.0",
			expected: true,
		},
		{
			name:     "rollback onto minor release",
			history:  models.ReleaseHistory{"2.0.0": rel(true, false), "2.1.0": rel(true, false), "2.2.0": rel(false, false)},
			runtime:  "2.2.0",
			expected: false,
		},
		{
			name:     "rollback onto first pre-release of a major",
			history:  models.ReleaseHistory{"3.0.0-rc.0": rel(true, false), "3.0.0-rc.1": rel(false, false)},
			runtime:  "3.0.0-rc.1",
			expected: true,
		},
		{
			name:     "rollback onto untagged first pre-release of a major",
			history:  models.ReleaseHistory{"3.0.0-0": rel(true, false), "3.0.0-1": rel(false, false)},
			runtime:  "3.0.0-1",
			expected: true,
		},
		{
			name:     "rollback onto later untagged pre-release",
			history:  models.ReleaseHistory{"3.0.0-1": rel(true, false)},
			runtime:  "3.0.0-2",
			expected: false,
		},
		{
			name:     "rollback onto pre-release with several tags",
			history:  models.ReleaseHistory{"3.0.0-rc.beta.0": rel(true, false)},
			runtime:  "3.0.0-rc.beta.1",
			expected: false,
		},
		{
			name:     "rollback onto later pre-release",
			history:  models.ReleaseHistory{"3.0.0-rc.1": rel(true, false)},
			runtime:  "3.0.0-rc.2",
			expected: false,
		},
		{
			name:     "no rollback",
			history:  models.ReleaseHistory{"2.0.0": rel(true, false)},
			runtime:  "2.0.0",
			expected: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := mustSemantic(t, tt.history).ShouldRollbackToLatestMajorVersion(tt.runtime)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestDecide(t *testing.T) {
	h := models.ReleaseHistory{
		"1": rel(true, false),
		"2": rel(true, true),
		"3": rel(true, false),
	}
	tests := []struct {
		name    string
		history models.ReleaseHistory
		runtime string
		action  Action
		target  string
	}{
		{name: "on latest", history: h, runtime: "3", action: ActionNoUpdate, target: "3"},
		{name: "behind mandatory", history: h, runtime: "1", action: ActionMandatoryUpdate, target: "3"},
		{name: "past mandatory", history: h, runtime: "2", action: ActionOptionalUpdate, target: "3"},
		{name: "binary install", history: h, runtime: "", action: ActionMandatoryUpdate, target: "3"},
		{
			name:    "binary install with only binary entry",
			history: models.ReleaseHistory{"1": rel(true, false)},
			runtime: "",
			action:  ActionNoUpdate,
			target:  "1",
		},
		{
			name:    "rollback to enabled middle",
			history: models.ReleaseHistory{"1": rel(true, false), "2": rel(true, false), "3": rel(false, false)},
			runtime: "3",
			action:  ActionRollback,
			target:  "2",
		},
		{
			name:    "rollback to binary",
			history: models.ReleaseHistory{"1": rel(true, false), "2": rel(false, true)},
			runtime: "2",
			action:  ActionRollbackToBinary,
			target:  "1",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := mustIncremental(t, tt.history).Decide(tt.runtime)
			require.NoError(t, err)
			assert.Equal(t, tt.action, d.Action, d.Action.String())
			assert.Equal(t, tt.target, d.Target.Version)
			if tt.action.IsRollback() {
				assert.True(t, d.Mandatory)
			}
		})
	}

	_, err := mustIncremental(t, models.ReleaseHistory{}).Decide("1")
	assert.ErrorIs(t, err, ErrNoReleaseFound)
}

func TestProperties(t *testing.T) {
	histories := []models.ReleaseHistory{
		{"1": rel(true, false), "2": rel(false, true), "3": rel(true, true), "4": rel(false, false)},
		{"1": rel(true, true), "5": rel(true, false), "10": rel(false, true)},
	}
	runtimes := []string{"", "1", "2", "3", "4", "5", "10", "11"}

	for _, h := range histories {
		first := mustIncremental(t, h)
		second := mustIncremental(t, h)
		assert.Equal(t, first.Sorted(), second.Sorted())

		for _, runtime := range runtimes {
			rollback, err := first.ShouldRollback(runtime)
			require.NoError(t, err)
			mandatory, err := first.CheckIsMandatory(runtime)
			require.NoError(t, err)
			if rollback {
				assert.True(t, mandatory, "rollback must be mandatory for %q", runtime)
			}

			again, err := second.CheckIsMandatory(runtime)
			require.NoError(t, err)
			assert.Equal(t, mandatory, again)
		}

		rollback, err := first.ShouldRollback("")
		require.NoError(t, err)
		assert.False(t, rollback)

		binaryMandatory, err := first.CheckIsMandatory("")
		require.NoError(t, err)
		assert.Equal(t, len(first.Mandatory()) > 0, binaryMandatory)
	}
}

func TestCompareTotality(t *testing.T) {
	semantic := []string{"1.0.0", "1.0.0-rc.1", "1.0.0-rc.10", "1.0.0-rc.2", "1.0.0+build.1", "1.0.0-alpha", "2.0.0", "0.9.9"}
	incremental := []string{"0", "1", "01", "2", "10", "100"}

	check := func(s Strategy, versions []string) {
		for _, a := range versions {
			for _, b := range versions {
				ab, ba := s.Compare(a, b), s.Compare(b, a)
				if a == b {
					assert.Zero(t, ab)
					continue
				}
				assert.NotZero(t, ab, "%s vs %s", a, b)
				assert.Equal(t, -ab, ba, "%s vs %s", a, b)
			}
		}
	}
	check(SemanticStrategy{}, semantic)
	check(IncrementalStrategy{}, incremental)

	assert.Equal(t, -1, SemanticStrategy{}.Compare("1.0.0-rc.2", "1.0.0-rc.10"))
	assert.Equal(t, -1, SemanticStrategy{}.Compare("1.0.0-rc.10", "1.0.0"))
	assert.Equal(t, 1, IncrementalStrategy{}.Compare("10", "9"))
}
