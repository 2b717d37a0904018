package export

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"cs_chatbot/pkg/conversation"
)

var fixedTime = time.Date(2025, 3, 1, 9, 30, 15, 123456000, time.UTC)

func sampleTurns() []conversation.Turn {
	return []conversation.Turn{
		{Role: conversation.RoleSystem, Content: "규칙", Timestamp: fixedTime},
		{Role: conversation.RoleUser, Content: "상품이 파손되어 왔어요, \"박스\"도 찢어졌어요", Timestamp: fixedTime.Add(time.Second)},
		{Role: conversation.RoleAssistant, Content: "불편을 드려 죄송합니다.\n이메일을 알려주시겠어요? <a&b>", Timestamp: fixedTime.Add(2 * time.Second)},
	}
}

func TestCSV(t *testing.T) {
	data, err := CSV(sampleTurns())
	if err != nil {
		t.Fatalf("CSV() error: %v", err)
	}

	want := "role,content,timestamp\n" +
		"system,규칙,2025-03-01T09:30:15.123456\n" +
		"user,\"상품이 파손되어 왔어요, \"\"박스\"\"도 찢어졌어요\",2025-03-01T09:30:16.123456\n" +
		"assistant,\"불편을 드려 죄송합니다.\n이메일을 알려주시겠어요? <a&b>\",2025-03-01T09:30:17.123456\n"
	if string(data) != want {
		t.Fatalf("Unexpected CSV:\n%s\nwant:\n%s", data, want)
	}
}

func TestCSV_EmptyHasHeaderOnly(t *testing.T) {
	data, err := CSV(nil)
	if err != nil {
		t.Fatalf("CSV() error: %v", err)
	}
	if string(data) != "role,content,timestamp\n" {
		t.Fatalf("Expected header only, got %q", data)
	}
}

func TestJSON(t *testing.T) {
	data, err := JSON(sampleTurns())
	if err != nil {
		t.Fatalf("JSON() error: %v", err)
	}

	text := string(data)
	if !strings.HasPrefix(text, "[\n  {\n    \"role\": \"system\",") {
		t.Fatalf("Expected two-space indented array, got:\n%s", text)
	}
	if !strings.Contains(text, "상품이 파손되어 왔어요") {
		t.Fatal("Expected Hangul to be written unescaped")
	}
	if !strings.Contains(text, "<a&b>") {
		t.Fatal("Expected HTML characters to be written unescaped")
	}
	if strings.HasSuffix(text, "\n") {
		t.Fatal("Expected no trailing newline")
	}

	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		t.Fatalf("Output is not valid JSON: %v", err)
	}
	if len(records) != 3 || records[2].Role != "assistant" || records[0].Timestamp != "2025-03-01T09:30:15.123456" {
		t.Fatalf("Unexpected records %+v", records)
	}
}

func TestBuild(t *testing.T) {
	snap, err := Build(sampleTurns())
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	if len(snap.CSV) == 0 || len(snap.JSON) == 0 {
		t.Fatal("Expected both encodings")
	}
}

func TestParseCSV(t *testing.T) {
	data, err := CSV(sampleTurns())
	if err != nil {
		t.Fatalf("CSV() error: %v", err)
	}
	turns, err := ParseCSV(data)
	if err != nil {
		t.Fatalf("ParseCSV() error: %v", err)
	}
	want := sampleTurns()
	if len(turns) != len(want) {
		t.Fatalf("Expected %d turns, got %d", len(want), len(turns))
	}
	for i := range want {
		if turns[i].Role != want[i].Role || turns[i].Content != want[i].Content || !turns[i].Timestamp.Equal(want[i].Timestamp) {
			t.Fatalf("Turn %d mismatch: %+v vs %+v", i, turns[i], want[i])
		}
	}
}

func TestParseCSV_Errors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"empty", ""},
		{"wrong header", "a,b,c\n"},
		{"bad role", "role,content,timestamp\nrobot,hi,2025-03-01T09:30:15.123456\n"},
		{"bad timestamp", "role,content,timestamp\nuser,hi,yesterday\n"},
		{"short row", "role,content,timestamp\nuser,hi\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseCSV([]byte(tt.data)); err == nil {
				t.Fatal("Expected error")
			}
		})
	}
}

func TestFileSaver_Save(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "exports")
	saver := NewFileSaver(dir)

	if err := saver.Save(context.Background(), "ab12cd34", sampleTurns()[:2]); err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	if err := saver.Save(context.Background(), "ab12cd34", sampleTurns()); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	path := filepath.Join(dir, "chat_ab12cd34.csv")
	if saver.Path("ab12cd34") != path {
		t.Fatalf("Unexpected path %q", saver.Path("ab12cd34"))
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read autosave: %v", err)
	}
	want, _ := CSV(sampleTurns())
	if string(data) != string(want) {
		t.Fatalf("Expected autosave to hold the latest transcript, got:\n%s", data)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("Expected no leftover temp files, got %d entries", len(entries))
	}
}

func TestFileSaver_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	saver := NewFileSaver(t.TempDir())
	if err := saver.Save(ctx, "x", sampleTurns()); err == nil {
		t.Fatal("Expected error for canceled context")
	}
}

func TestWriteSnapshot(t *testing.T) {
	dir := t.TempDir()
	snap, err := Build(sampleTurns())
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}

	csvPath, jsonPath, err := WriteSnapshot(dir, "s1", snap)
	if err != nil {
		t.Fatalf("WriteSnapshot() error: %v", err)
	}
	if filepath.Base(csvPath) != "chat_s1.csv" || filepath.Base(jsonPath) != "chat_s1.json" {
		t.Fatalf("Unexpected paths %q %q", csvPath, jsonPath)
	}
	got, _ := os.ReadFile(jsonPath)
	if string(got) != string(snap.JSON) {
		t.Fatal("JSON file content mismatch")
	}
}
