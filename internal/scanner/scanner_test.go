package scanner

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"deployguard/internal/registry"

	"github.com/google/go-cmp/cmp"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testLayout = Layout{
	Dir:        "dist",
	Entry:      "index.html",
	Assets:     "assets",
	Extensions: []string{".js"},
}

// writeBuild creates a build under root with the given asset files.
func writeBuild(t *testing.T, root string, assets map[string]string) Layout {
	t.Helper()
	layout := testLayout
	layout.Dir = filepath.Join(root, "dist")

	require.NoError(t, os.MkdirAll(filepath.Join(layout.Dir, layout.Assets), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(layout.Dir, layout.Entry), []byte("<html></html>"), 0644))

	for name, content := range assets {
		path := filepath.Join(layout.Dir, layout.Assets, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}
	return layout
}

func TestScan_NoEntryFile(t *testing.T) {
	layout := testLayout
	layout.Dir = filepath.Join(t.TempDir(), "dist")

	_, err := Scanner{Registry: registry.Default(), Layout: layout}.Scan()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoBuild))
}

func TestScan_EntryIsDirectory(t *testing.T) {
	layout := testLayout
	layout.Dir = t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(layout.Dir, layout.Entry), 0755))

	_, err := Scanner{Registry: registry.Default(), Layout: layout}.Scan()
	assert.True(t, errors.Is(err, ErrNoBuild))
}

func TestScan_DetectsEnvironment(t *testing.T) {
	layout := writeBuild(t, t.TempDir(), map[string]string{
		"index-a1b2.js":  `const firebaseConfig={authDomain:"passcpa-dev.firebaseapp.com",projectId:"passcpa-dev"};`,
		"vendor-c3d4.js": `console.log("vendor")`,
	})

	fp, err := Scanner{Registry: registry.Default(), Layout: layout}.Scan()
	require.NoError(t, err)

	assert.Equal(t, registry.Development, fp.Class)
	assert.True(t, fp.Conclusive())
	assert.False(t, fp.Ambiguous())
	assert.Equal(t, 2, fp.AssetsScanned)

	want := []Match{{ProjectID: "passcpa-dev", Class: registry.Development, Asset: "index-a1b2.js"}}
	if diff := cmp.Diff(want, fp.Matches); diff != "" {
		t.Errorf("matches mismatch (-want +got):\n%s", diff)
	}
}

func TestScan_NoSignatureIsInconclusive(t *testing.T) {
	layout := writeBuild(t, t.TempDir(), map[string]string{
		"index.js": `const x=1;`,
	})

	fp, err := Scanner{Registry: registry.Default(), Layout: layout}.Scan()
	require.NoError(t, err)
	assert.False(t, fp.Conclusive())
	assert.Empty(t, fp.Matches)
	assert.Empty(t, fp.Conflicting)
}

func TestScan_MissingAssetDirIsInconclusive(t *testing.T) {
	layout := testLayout
	layout.Dir = t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(layout.Dir, layout.Entry), []byte("<html>"), 0644))

	fp, err := Scanner{Registry: registry.Default(), Layout: layout}.Scan()
	require.NoError(t, err)
	assert.False(t, fp.Conclusive())
	assert.Equal(t, 0, fp.AssetsScanned)
}

func TestScan_MixedClassesAreAmbiguous(t *testing.T) {
	layout := writeBuild(t, t.TempDir(), map[string]string{
		"index-new.js": `projectId:"voraprep-prod"`,
		"index-old.js": `projectId:"passcpa-staging"`,
	})

	fp, err := Scanner{Registry: registry.Default(), Layout: layout}.Scan()
	require.NoError(t, err)

	assert.False(t, fp.Conclusive())
	assert.True(t, fp.Ambiguous())
	assert.Equal(t, []registry.Class{registry.Staging, registry.Production}, fp.Conflicting,
		"conflicts are listed in registry declaration order")
}

func TestScan_SingleAssetWithSeveralIDsUsesDeclarationOrder(t *testing.T) {
	layout := writeBuild(t, t.TempDir(), map[string]string{
		"index.js": `const envs={dev:"passcpa-dev",prod:"voraprep-prod"};`,
	})

	fp, err := Scanner{Registry: registry.Default(), Layout: layout}.Scan()
	require.NoError(t, err)

	assert.True(t, fp.Conclusive())
	assert.False(t, fp.Ambiguous())
	assert.Equal(t, registry.Development, fp.Class)
	want := []Match{{ProjectID: "passcpa-dev", Class: registry.Development, Asset: "index.js"}}
	if diff := cmp.Diff(want, fp.Matches); diff != "" {
		t.Errorf("matches mismatch (-want +got):\n%s", diff)
	}
}

func TestScan_AliasesOfOneClassAreConclusive(t *testing.T) {
	layout := writeBuild(t, t.TempDir(), map[string]string{
		"a.js": `"voraprep-prod"`,
		"b.js": `"passcpa-prod"`,
	})

	fp, err := Scanner{Registry: registry.Default(), Layout: layout}.Scan()
	require.NoError(t, err)
	assert.Equal(t, registry.Production, fp.Class)
	assert.Len(t, fp.Matches, 2)
}

func TestScan_ExtensionFilterAndNesting(t *testing.T) {
	layout := writeBuild(t, t.TempDir(), map[string]string{
		"logo.svg":         `passcpa-staging`,
		"chunks/app.JS":    `passcpa-dev`,
		"chunks/app.js.gz": `voraprep-prod`,
	})

	fp, err := Scanner{Registry: registry.Default(), Layout: layout}.Scan()
	require.NoError(t, err)
	assert.Equal(t, registry.Development, fp.Class)
	assert.Equal(t, 1, fp.AssetsScanned)
	assert.Equal(t, "chunks/app.JS", fp.Matches[0].Asset)
}

func TestScan_NoExtensionsScansEverything(t *testing.T) {
	layout := writeBuild(t, t.TempDir(), map[string]string{
		"config.json": `{"projectId":"passcpa-staging"}`,
	})
	layout.Extensions = nil

	fp, err := Scanner{Registry: registry.Default(), Layout: layout}.Scan()
	require.NoError(t, err)
	assert.Equal(t, registry.Staging, fp.Class)
}

func TestScan_UnreadableAssetIsSkipped(t *testing.T) {
	if runtime.GOOS == "windows" || os.Geteuid() == 0 {
		t.Skip("file permissions are not enforced")
	}

	layout := writeBuild(t, t.TempDir(), map[string]string{
		"locked.js": `"voraprep-prod"`,
		"open.js":   `"passcpa-dev"`,
	})
	locked := filepath.Join(layout.Dir, layout.Assets, "locked.js")
	require.NoError(t, os.Chmod(locked, 0000))
	t.Cleanup(func() { _ = os.Chmod(locked, 0644) })

	fp, err := Scanner{Registry: registry.Default(), Layout: layout}.Scan()
	require.NoError(t, err)
	assert.Equal(t, 1, fp.AssetsSkipped)
	assert.Equal(t, 1, fp.AssetsScanned)
	assert.Equal(t, registry.Development, fp.Class)
}

// For every registered id P with class C, a synthetic build whose assets
// contain only P SHALL fingerprint as C.
func TestScan_RegisteredIDYieldsItsClass_Property(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50

	properties := gopter.NewProperties(parameters)
	reg := registry.Default()
	projects := reg.Projects()

	properties.Property("single id build yields registered class", prop.ForAll(
		func(idx int, prefix, suffix string) bool {
			p := projects[idx%len(projects)]
			layout := writeBuild(t, t.TempDir(), map[string]string{
				"index.js": prefix + ` "` + p.ID + `" ` + suffix,
			})

			fp, err := Scanner{Registry: reg, Layout: layout}.Scan()
			if err != nil {
				t.Logf("scan failed: %v", err)
				return false
			}
			return fp.Class == p.Class
		},
		gen.IntRange(0, 100),
		gen.AlphaString(),
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}

// For an unchanged build directory, repeated scans SHALL produce identical
// fingerprints.
func TestScan_Idempotent_Property(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 30

	properties := gopter.NewProperties(parameters)
	reg := registry.Default()
	projects := reg.Projects()

	properties.Property("repeated scans agree", prop.ForAll(
		func(picks []int) bool {
			assets := make(map[string]string)
			for i, pick := range picks {
				p := projects[pick%len(projects)]
				assets[string(rune('a'+i))+".js"] = p.ID
			}
			layout := writeBuild(t, t.TempDir(), assets)
			s := Scanner{Registry: reg, Layout: layout}

			first, err1 := s.Scan()
			second, err2 := s.Scan()
			if err1 != nil || err2 != nil {
				return false
			}
			return cmp.Equal(first, second)
		},
		gen.SliceOfN(5, gen.IntRange(0, 100)),
	))

	properties.TestingRun(t)
}
