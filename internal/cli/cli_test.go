package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/WilliamDuke02/databaseProject/pkg/models"
	"github.com/WilliamDuke02/databaseProject/pkg/pipeline"
)

type harness struct {
	t   *testing.T
	dir string
	dsn string
}

func newHarness(t *testing.T) *harness {
	dir := t.TempDir()
	return &harness{t: t, dir: dir, dsn: filepath.Join(dir, "vinledger.db")}
}

func (h *harness) run(args ...string) (string, error) {
	h.t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := NewRootCommand(&stdout, &stderr)
	cmd.SetArgs(append([]string{"--env", h.dir, "--dsn", h.dsn, "--log-level", "error"}, args...))
	err := cmd.Execute()
	return stdout.String(), err
}

func (h *harness) mustRun(args ...string) string {
	h.t.Helper()
	out, err := h.run(args...)
	require.NoError(h.t, err, out)
	return out
}

func TestVersion(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, Version+"\n", h.mustRun("version"))
}

func TestRecordsAndQueries(t *testing.T) {
	h := newHarness(t)
	h.mustRun("migrate")

	out := h.mustRun("records", "-t", "merged_admin", "insert", "-s", "vin_nr=V1", "-s", "make=Ford", "-s", "zip=4", "-o", "json")
	var created models.AdminRecord
	require.NoError(t, json.Unmarshal([]byte(out), &created))
	assert.Equal(t, int64(1), created.SurrogateKey)
	assert.Equal(t, 4, created.Zip)

	h.mustRun("records", "-t", "merged_admin", "insert", "-s", "vin_nr=V2", "-s", "make=Kia")

	out = h.mustRun("records", "-t", "merged_admin", "get", "V2")
	assert.Contains(t, out, "Kia")
	assert.Contains(t, out, "surrogate_key")

	h.mustRun("records", "-t", "merged_admin", "update", "V2", "-s", "make=Ford")

	out = h.mustRun("counts", "-t", "merged_nonadmin", "-g", "make", "-o", "json")
	var counts []models.CategoryCount
	require.NoError(t, json.Unmarshal([]byte(out), &counts))
	require.Len(t, counts, 1)
	assert.Equal(t, models.CategoryCount{Category: "Ford", Count: 2}, counts[0])

	out = h.mustRun("distinct", "-t", "merged_admin", "-o", "yaml")
	var distinct []models.ColumnValues
	require.NoError(t, yaml.Unmarshal([]byte(out), &distinct))
	assert.NotEmpty(t, distinct)

	out = h.mustRun("export", "-t", "merged_nonadmin", "-f", "make=Ford", "--dir", h.dir)
	assert.Contains(t, out, "wrote 2 rows")
	data, err := os.ReadFile(filepath.Join(h.dir, "merged_nonadmin_export.csv"))
	require.NoError(t, err)
	assert.Equal(t, 2, bytes.Count(data, []byte("\n")))

	h.mustRun("records", "-t", "merged_admin", "delete", "V1")
	_, err = h.run("records", "-t", "merged_admin", "get", "V1")
	assert.Error(t, err)
}

func TestUnmergedPositionalUpdate(t *testing.T) {
	h := newHarness(t)
	h.mustRun("migrate")
	h.mustRun("records", "-t", "unmerged_vins", "insert", "-s", "vin_nr=Z1")

	_, err := h.run("records", "-t", "unmerged_vins", "update", "Z1", "Acme", "Road")
	assert.Error(t, err)

	out := h.mustRun("records", "-t", "unmerged_vins", "update", "Z1", "Acme", "Road", "1999", "k1", "k2", "5", "-o", "json")
	var rec models.UnmergedRecord
	require.NoError(t, json.Unmarshal([]byte(out), &rec))
	assert.Equal(t, "Road", rec.ModelShort)
	assert.Equal(t, int64(5), rec.SurrogateKey)

	_, err = h.run("records", "-t", "merged_admin", "update", "Z1", "Acme")
	assert.Error(t, err)
}

func TestReconcile(t *testing.T) {
	h := newHarness(t)
	source := filepath.Join(h.dir, "vins.csv")
	decoder := filepath.Join(h.dir, "VIN_decoder.csv")
	require.NoError(t, os.WriteFile(source, []byte("VIN-NR,Make\n1FTFW1E5XPFA00001,Ford\nZZZZZZZZZZZZZ0001,Acme\n"), 0o644))
	require.NoError(t, os.WriteFile(decoder, []byte("VIN_Key,Check,Vehicle Name\n1FTFW1E5,P,F-150\n"), 0o644))

	out := h.mustRun("reconcile", "--source", source, "--decoder", decoder, "--seed", "7", "-o", "json")
	var report pipeline.Report
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, pipeline.StatusSuccess, report.Status)
	assert.Equal(t, 1, report.Reconcile.MergedRows)
	assert.Equal(t, 1, report.Reconcile.UnmergedRows)
	require.NotNil(t, report.Load)
	assert.Equal(t, 1, report.Load.AdminRows)

	out = h.mustRun("reconcile", "--source", filepath.Join(h.dir, "missing.csv"), "--decoder", decoder)
	assert.Contains(t, out, "skipped")
}

func TestInvalidInput(t *testing.T) {
	h := newHarness(t)

	for name, args := range map[string][]string{
		"output format": {"counts", "-t", "merged_admin", "-g", "make", "-o", "xml"},
		"table":         {"distinct", "-t", "people"},
		"assignment":    {"records", "-t", "merged_admin", "insert", "-s", "make"},
		"filter":        {"export", "-t", "merged_admin", "-f", "nope"},
		"driver":        {"--driver", "mysql", "migrate"},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := h.run(args...)
			assert.Error(t, err)
		})
	}
}
