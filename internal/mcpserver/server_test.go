package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/DaewiLF/MinerIA/internal/api"
	"github.com/DaewiLF/MinerIA/internal/report"
	"github.com/DaewiLF/MinerIA/internal/session"
)

// --- mocks ---

type mockSession struct {
	sess session.Session
}

func (m *mockSession) Current() (session.Session, bool) { return m.sess, m.sess.Token != "" }
func (m *mockSession) Token() string                    { return m.sess.Token }
func (m *mockSession) Authenticated() bool              { return m.sess.Token != "" }

type mockBackend struct {
	history []api.AnalysisSummary
	detail  api.AnalysisDetail
	err     error
	calls   int
}

func (m *mockBackend) History(context.Context) ([]api.AnalysisSummary, error) {
	m.calls++
	return m.history, m.err
}

func (m *mockBackend) Analysis(_ context.Context, id string) (api.AnalysisDetail, error) {
	m.calls++
	return m.detail, m.err
}

type mockReports struct {
	ids []string
	err error
}

func (m *mockReports) Download(_ context.Context, id string) (report.Report, error) {
	m.ids = append(m.ids, id)
	if m.err != nil {
		return report.Report{}, m.err
	}
	return report.Report{ID: id, Path: "/tmp/" + report.FileName(id), Size: 1234}, nil
}

// --- helpers ---

func loggedIn() *mockSession {
	return &mockSession{sess: session.Session{
		Token:    "tok",
		Identity: session.Identity{ID: 1, Email: "ana@mineria.cl", Role: session.RoleAnalyst, Name: "Ana"},
	}}
}

func newTestDeps(sess *mockSession) (Deps, *mockBackend, *mockReports) {
	b := &mockBackend{}
	r := &mockReports{}
	return Deps{Session: sess, Backend: b, Reports: r}, b, r
}

func toolText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("no content in result")
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", result.Content[0])
	}
	return tc.Text
}

func makeCallToolRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func makeReadResourceRequest(uri string) mcp.ReadResourceRequest {
	return mcp.ReadResourceRequest{
		Params: mcp.ReadResourceParams{
			URI: uri,
		},
	}
}

// --- tests ---

func TestMCPTool_SessionStatus_Anonymous(t *testing.T) {
	deps, _, _ := newTestDeps(&mockSession{})

	result, err := toolSessionStatus(deps)(context.Background(), makeCallToolRequest("session_status", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", toolText(t, result))
	}
	if got := toolText(t, result); got != `{"authenticated":false}` {
		t.Errorf("status = %s", got)
	}
}

func TestMCPTool_SessionStatus_LoggedIn(t *testing.T) {
	deps, _, _ := newTestDeps(loggedIn())

	result, err := toolSessionStatus(deps)(context.Background(), makeCallToolRequest("session_status", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var st struct {
		Authenticated bool             `json:"authenticated"`
		User          session.Identity `json:"user"`
	}
	if err := json.Unmarshal([]byte(toolText(t, result)), &st); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if !st.Authenticated || st.User.Email != "ana@mineria.cl" || st.User.Role != session.RoleAnalyst {
		t.Errorf("status = %+v", st)
	}
	if strings.Contains(toolText(t, result), "tok") {
		t.Error("status must not leak the token")
	}
}

func TestMCPTool_History(t *testing.T) {
	deps, backend, _ := newTestDeps(loggedIn())
	backend.history = []api.AnalysisSummary{
		{ID: 3, Zone: "Mina Norte", RiskLevel: "Bajo"},
		{ID: 2, Zone: "Rajo Sur", RiskLevel: "Alto"},
		{ID: 1, Zone: "Mina Norte", RiskLevel: "Medio"},
	}

	result, err := toolHistory(deps)(context.Background(), makeCallToolRequest("analysis_history", map[string]interface{}{
		"limit": float64(2),
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", toolText(t, result))
	}

	var rows []api.AnalysisSummary
	if err := json.Unmarshal([]byte(toolText(t, result)), &rows); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(rows) != 2 || rows[0].ID != 3 || rows[1].ID != 2 {
		t.Errorf("rows = %+v", rows)
	}
}

func TestMCPTool_History_Anonymous(t *testing.T) {
	deps, backend, _ := newTestDeps(&mockSession{})

	result, err := toolHistory(deps)(context.Background(), makeCallToolRequest("analysis_history", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Error("expected tool error when anonymous")
	}
	if backend.calls != 0 {
		t.Error("backend should not be called when anonymous")
	}
}

func TestMCPTool_History_BackendError(t *testing.T) {
	deps, backend, _ := newTestDeps(loggedIn())
	backend.err = &api.StatusError{StatusCode: 500, Message: "db down"}

	result, err := toolHistory(deps)(context.Background(), makeCallToolRequest("analysis_history", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected tool error")
	}
	if !strings.Contains(toolText(t, result), "db down") {
		t.Errorf("message = %q", toolText(t, result))
	}
}

func TestMCPTool_Detail(t *testing.T) {
	deps, backend, _ := newTestDeps(loggedIn())
	backend.detail = api.AnalysisDetail{ID: 42, AISummary: "Mineral de cobre", Recommendations: []string{"Reforzar"}}

	result, err := toolDetail(deps)(context.Background(), makeCallToolRequest("analysis_detail", map[string]interface{}{
		"id": "42",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", toolText(t, result))
	}

	var d api.AnalysisDetail
	if err := json.Unmarshal([]byte(toolText(t, result)), &d); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if d.ID != 42 || d.AISummary != "Mineral de cobre" {
		t.Errorf("detail = %+v", d)
	}
}

func TestMCPTool_Detail_MissingID(t *testing.T) {
	deps, _, _ := newTestDeps(loggedIn())

	result, err := toolDetail(deps)(context.Background(), makeCallToolRequest("analysis_detail", map[string]interface{}{}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Error("expected tool error for missing id")
	}
}

func TestMCPTool_Detail_Anonymous(t *testing.T) {
	deps, backend, _ := newTestDeps(&mockSession{})

	result, _ := toolDetail(deps)(context.Background(), makeCallToolRequest("analysis_detail", map[string]interface{}{
		"id": "42",
	}))
	if !result.IsError {
		t.Error("expected tool error when anonymous")
	}
	if backend.calls != 0 {
		t.Error("backend should not be called when anonymous")
	}
}

func TestMCPTool_DownloadReport(t *testing.T) {
	deps, _, reports := newTestDeps(loggedIn())

	result, err := toolDownloadReport(deps)(context.Background(), makeCallToolRequest("download_report", map[string]interface{}{
		"id": "42",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", toolText(t, result))
	}
	if !strings.Contains(toolText(t, result), "reporte_42.pdf") {
		t.Errorf("message = %q", toolText(t, result))
	}
	if len(reports.ids) != 1 || reports.ids[0] != "42" {
		t.Errorf("downloads = %v", reports.ids)
	}
}

func TestMCPTool_DownloadReport_Anonymous(t *testing.T) {
	deps, _, reports := newTestDeps(&mockSession{})

	result, err := toolDownloadReport(deps)(context.Background(), makeCallToolRequest("download_report", map[string]interface{}{
		"id": "42",
	}))
	if err != nil {
		t.Fatalf("protocol error should not be returned: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected tool error")
	}
	if !strings.Contains(toolText(t, result), "not logged in") {
		t.Errorf("message = %q", toolText(t, result))
	}
	if len(reports.ids) != 0 {
		t.Errorf("downloads = %v, want none", reports.ids)
	}
}

func TestMCPTool_DownloadReport_Failure(t *testing.T) {
	deps, _, reports := newTestDeps(loggedIn())
	reports.err = fmt.Errorf("%w: report 42: server returned 404", report.ErrDownloadFailed)

	result, err := toolDownloadReport(deps)(context.Background(), makeCallToolRequest("download_report", map[string]interface{}{
		"id": "42",
	}))
	if err != nil {
		t.Fatalf("protocol error should not be returned: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected tool error")
	}
	if !strings.Contains(toolText(t, result), "report download failed") {
		t.Errorf("message = %q", toolText(t, result))
	}
}

func TestMCPResource_Identity(t *testing.T) {
	deps, _, _ := newTestDeps(loggedIn())

	contents, err := resourceIdentity(deps)(context.Background(), makeReadResourceRequest("session://identity"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(contents) != 1 {
		t.Fatalf("got %d contents, want 1", len(contents))
	}
	tc, ok := contents[0].(mcp.TextResourceContents)
	if !ok {
		t.Fatalf("expected TextResourceContents, got %T", contents[0])
	}
	if tc.URI != "session://identity" || tc.MIMEType != "application/json" {
		t.Errorf("contents = %+v", tc)
	}
	if !strings.Contains(tc.Text, `"name":"Ana"`) {
		t.Errorf("text = %s", tc.Text)
	}
}

func TestNew_RegistersTools(t *testing.T) {
	deps, _, _ := newTestDeps(loggedIn())
	s := New(deps)
	if s == nil {
		t.Fatal("New returned nil")
	}
}
