package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"labcore/pkg/domain"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type harness struct {
	t   *testing.T
	dir string
	env map[string]string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()
	return &harness{t: t, dir: dir, env: map[string]string{
		"LABCORE_STORAGE_DRIVER": "memory",
		"LABCORE_MEMORY_PATH":    filepath.Join(dir, "store.json"),
		"LABCORE_BLOB_DRIVER":    "fs",
		"LABCORE_BLOB_FS_ROOT":   filepath.Join(dir, "blobs"),
		"LABCORE_LOG_LEVEL":      "error",
	}}
}

func (h *harness) run(args ...string) (string, string, error) {
	h.t.Helper()
	opts := &RootOptions{Lookup: func(key string) (string, bool) {
		v, ok := h.env[key]
		return v, ok
	}}
	cmd := NewRootCommandWith(opts)
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

// response runs args and decodes the printed response.
func (h *harness) response(args ...string) (map[string]any, error) {
	h.t.Helper()
	out, _, err := h.run(args...)
	var res map[string]any
	if jerr := json.Unmarshal([]byte(out), &res); jerr != nil {
		h.t.Fatalf("decode response of %v: %v\n%s", args, jerr, out)
	}
	return res, err
}

// create runs a create command and returns the new id.
func (h *harness) create(args ...string) string {
	h.t.Helper()
	res, err := h.response(args...)
	if err != nil {
		h.t.Fatalf("%v: %v", args, err)
	}
	id, _ := res["data"].(string)
	if id == "" {
		h.t.Fatalf("%v returned no id: %v", args, res)
	}
	return id
}

func (h *harness) entity(id string) domain.Entity {
	h.t.Helper()
	out, _, err := h.run("entity", "get", id)
	if err != nil {
		h.t.Fatalf("get %s: %v", id, err)
	}
	var e domain.Entity
	if err := json.Unmarshal([]byte(out), &e); err != nil {
		h.t.Fatalf("decode entity: %v", err)
	}
	return e
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	for _, path := range [][]string{
		{"entity", "create"}, {"entity", "link"}, {"entity", "attach"},
		{"collection", "add-child"}, {"attribute", "archive"},
		{"export"}, {"audit"}, {"repair"},
	} {
		sub, _, err := cmd.Find(path)
		if err != nil || sub.Name() != path[len(path)-1] {
			t.Fatalf("command %v missing: %v", path, err)
		}
	}
	if f := cmd.PersistentFlags().Lookup("output"); f == nil || f.DefValue != "json" {
		t.Fatalf("expected --output defaulting to json, got %+v", f)
	}
}

func TestInvalidOutputAndConfig(t *testing.T) {
	h := newHarness(t)
	if _, _, err := h.run("--output", "yaml", "entity", "list"); ExitCode(err) != ExitCommandError {
		t.Fatalf("expected command error for bad output, got %v", err)
	}
	h.env["LABCORE_STORAGE_DRIVER"] = "cassandra"
	if _, _, err := h.run("entity", "list"); ExitCode(err) != ExitCommandError {
		t.Fatalf("expected command error for bad config, got %v", err)
	}
}

func TestEntityLinksAreBidirectional(t *testing.T) {
	h := newHarness(t)
	a := h.create("entity", "create", "--name", "Lysate")
	b := h.create("entity", "create", "--name", "Extract", "--origin", a)

	if got := h.entity(a).Associations.Products; len(got) != 1 || got[0].ID != b {
		t.Fatalf("expected %s to list product %s, got %+v", a, b, got)
	}

	res, err := h.response("entity", "unlink", b, "--origin", a)
	if err != nil || res["success"] != true {
		t.Fatalf("unlink: %v %v", res, err)
	}
	res, err = h.response("entity", "unlink", b, "--origin", a)
	if ExitCode(err) != ExitFailure || res["message"] != "Entity is not associated with Origin to be removed" {
		t.Fatalf("expected rejected unlink, got %v %v", res, err)
	}
	if got := h.entity(a).Associations.Products; len(got) != 0 {
		t.Fatalf("expected products cleared, got %+v", got)
	}

	res, err = h.response("entity", "link", a, "--product", b)
	if err != nil || res["data"] != float64(1) {
		t.Fatalf("link: %v %v", res, err)
	}
	if got := h.entity(b).Associations.Origins; len(got) != 1 || got[0].ID != a {
		t.Fatalf("expected %s to list origin %s, got %+v", b, a, got)
	}

	out, _, err := h.run("audit")
	if err != nil || strings.TrimSpace(out) != "[]" {
		t.Fatalf("expected clean audit, got %q %v", out, err)
	}

	if _, _, err := h.run("entity", "get", "missing"); ExitCode(err) != ExitFailure {
		t.Fatalf("expected not found exit, got %v", err)
	}
}

func TestEntityUpdateAndDelete(t *testing.T) {
	h := newHarness(t)
	id := h.create("entity", "create", "--name", "Plate", "--description", "96 well")

	res, err := h.response("entity", "update", id, "--description", "96 well")
	if err != nil || res["message"] != "No changes made to Entity" {
		t.Fatalf("expected no-op update, got %v %v", res, err)
	}
	res, err = h.response("entity", "update", id, "--description", "384 well")
	if err != nil || res["message"] != "Updated Entity" {
		t.Fatalf("expected update, got %v %v", res, err)
	}
	e := h.entity(id)
	if e.Description != "384 well" || len(e.History) != 1 {
		t.Fatalf("expected history entry, got %+v", e)
	}

	res, err = h.response("entity", "delete", id)
	if err != nil || res["message"] != "Deleted Entity successfully" {
		t.Fatalf("delete: %v %v", res, err)
	}
	res, err = h.response("entity", "delete", id)
	if ExitCode(err) != ExitFailure || res["message"] != "Entity not found" {
		t.Fatalf("expected not found, got %v %v", res, err)
	}
}

func TestCollectionsAndCycles(t *testing.T) {
	h := newHarness(t)
	e := h.create("entity", "create", "--name", "Vial")
	shelf := h.create("collection", "create", "--name", "Shelf", "--entity", e)
	box := h.create("collection", "create", "--name", "Box", "--type", "project")

	if got := h.entity(e).Collections; len(got) != 1 || got[0] != shelf {
		t.Fatalf("expected membership in %s, got %v", shelf, got)
	}
	if _, err := h.response("collection", "add-child", shelf, box); err != nil {
		t.Fatalf("nest: %v", err)
	}
	res, err := h.response("collection", "add-child", box, shelf)
	if ExitCode(err) != ExitFailure || res["message"] != "Unable to add Collection" {
		t.Fatalf("expected cycle rejection, got %v %v", res, err)
	}

	if _, err := h.response("entity", "leave", e, shelf); err != nil {
		t.Fatalf("leave: %v", err)
	}
	out, _, err := h.run("collection", "get", shelf)
	if err != nil {
		t.Fatalf("get collection: %v", err)
	}
	var c domain.Collection
	if err := json.Unmarshal([]byte(out), &c); err != nil {
		t.Fatalf("decode collection: %v", err)
	}
	if len(c.Entities) != 0 || len(c.Collections) != 1 {
		t.Fatalf("unexpected collection %+v", c)
	}
}

func TestAttributes(t *testing.T) {
	h := newHarness(t)
	id := h.create("entity", "create", "--name", "Run 12")
	attrID := h.create("entity", "add-attribute", id, "--name", "Run",
		"--value", "cycles=number:40", "--value", "machine=QS5")

	e := h.entity(id)
	if len(e.Attributes) != 1 || e.Attributes[0].ID != attrID || len(e.Attributes[0].Values) != 2 {
		t.Fatalf("unexpected attributes %+v", e.Attributes)
	}
	if _, _, err := h.run("entity", "add-attribute", id, "--name", "Bad", "--value", "nonsense"); ExitCode(err) != ExitCommandError {
		t.Fatalf("expected value parse error, got %v", err)
	}
	res, err := h.response("entity", "remove-attribute", id, "a-missing")
	if ExitCode(err) != ExitFailure || res["message"] != "Entity does not have Attribute to remove" {
		t.Fatalf("expected missing attribute, got %v %v", res, err)
	}

	tmpl := h.create("attribute", "create", "--name", "pH", "--value", "ph=number:7")
	if _, err := h.response("attribute", "archive", tmpl); err != nil {
		t.Fatalf("archive: %v", err)
	}
	out, _, err := h.run("-o", "text", "attribute", "list")
	if err != nil || !strings.Contains(out, "pH (archived)") {
		t.Fatalf("expected archived template in list, got %q %v", out, err)
	}
}

func TestAttachmentRoundTrip(t *testing.T) {
	h := newHarness(t)
	id := h.create("entity", "create", "--name", "Gel")
	src := filepath.Join(h.dir, "gel.txt")
	if err := os.WriteFile(src, []byte("lane 1: ladder"), 0o600); err != nil {
		t.Fatalf("write source: %v", err)
	}
	attID := h.create("entity", "attach", id, src)

	dst := filepath.Join(h.dir, "copy.txt")
	if _, _, err := h.run("entity", "download", id, attID, "--out", dst); err != nil {
		t.Fatalf("download: %v", err)
	}
	data, err := os.ReadFile(dst)
	if err != nil || string(data) != "lane 1: ladder" {
		t.Fatalf("unexpected download %q %v", data, err)
	}
	if e := h.entity(id); len(e.Attachments) != 1 || e.Attachments[0].Name != "gel.txt" {
		t.Fatalf("unexpected attachments %+v", e.Attachments)
	}

	if _, err := h.response("entity", "detach", id, attID); err != nil {
		t.Fatalf("detach: %v", err)
	}
	if _, _, err := h.run("entity", "download", id, attID); ExitCode(err) != ExitFailure {
		t.Fatalf("expected missing attachment, got %v", err)
	}
}

func TestExport(t *testing.T) {
	h := newHarness(t)
	id := h.create("entity", "create", "--name", "Sample")

	out, _, err := h.run("export", id, "--format", "csv", "--fields", "id,name")
	if err != nil || out != "id,name\n"+id+",Sample\n" {
		t.Fatalf("unexpected csv %q %v", out, err)
	}
	if _, _, err := h.run("export", id, "--format", "xml"); ExitCode(err) != ExitCommandError {
		t.Fatalf("expected bad format, got %v", err)
	}

	out, _, err = h.run("export", id, "--publish")
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	var art struct {
		Key       string `json:"key"`
		SizeBytes int64  `json:"size_bytes"`
	}
	if err := json.Unmarshal([]byte(out), &art); err != nil {
		t.Fatalf("decode artifact: %v", err)
	}
	if !strings.HasPrefix(art.Key, "exports/"+id+"/") || art.SizeBytes == 0 {
		t.Fatalf("unexpected artifact %+v", art)
	}
	if _, err := os.Stat(filepath.Join(h.dir, "blobs", filepath.FromSlash(art.Key))); err != nil {
		t.Fatalf("expected published blob on disk: %v", err)
	}
}

func TestRepairOnce(t *testing.T) {
	h := newHarness(t)
	h.create("entity", "create", "--name", "Solo")

	out, _, err := h.run("repair", "--dry-run", "--min-age", "0s")
	if err != nil {
		t.Fatalf("repair: %v", err)
	}
	var report struct {
		DryRun   bool  `json:"dry_run"`
		Journal  int   `json:"journal_records"`
		Findings []any `json:"findings"`
	}
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("decode report: %v\n%s", err, out)
	}
	if !report.DryRun || report.Journal != 0 || len(report.Findings) != 0 {
		t.Fatalf("unexpected report %+v", report)
	}

	if _, _, err := h.run("repair", "--schedule", "not a schedule"); ExitCode(err) != ExitCommandError {
		t.Fatalf("expected invalid schedule, got %v", err)
	}
}

func TestParseValue(t *testing.T) {
	tests := []struct {
		in   string
		want domain.ValueType
	}{
		{"cycles=number:40", domain.ValueNumber},
		{"machine=QS5", domain.ValueText},
		{"link=url:https://example.org", domain.ValueURL},
		{"run=date:2024-03-01", domain.ValueDate},
		{"parent=entity:e-1", domain.ValueEntity},
		{"dye=select:SYBR|FAM", domain.ValueSelect},
		{"note=ratio:3:1", domain.ValueText},
	}
	for _, tc := range tests {
		v, err := parseValue(tc.in)
		if err != nil {
			t.Fatalf("parseValue(%q): %v", tc.in, err)
		}
		if v.Type() != tc.want {
			t.Fatalf("parseValue(%q) type = %s, want %s", tc.in, v.Type(), tc.want)
		}
	}
	v, _ := parseValue("dye=select:SYBR|FAM")
	if sel := v.Data.(domain.SelectData); sel.Selected != "SYBR" || len(sel.Options) != 2 {
		t.Fatalf("unexpected select %+v", sel)
	}
	for _, bad := range []string{"novalue", "=text:x", "n=number:abc", "d=date:tomorrow"} {
		if _, err := parseValue(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}
