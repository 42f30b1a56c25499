package settings

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestLoadDefaultsWhenMissing(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "settings.json"), zerolog.Nop())
	if err := s.Load(); err != nil {
		t.Fatalf("文件不存在不是错误: %v", err)
	}

	v := s.Get()
	if v.IntervalSec != 3 || v.ProxyProtocol != "socks5" || !v.NotificationsEnabled {
		t.Fatalf("默认值不正确: %+v", v)
	}
}

func TestLoadNormalizesValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	raw := []byte(`{"interval_sec": -1, "proxy_protocol": "", "notifications_max_count": 0}`)
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatal(err)
	}

	s := NewStore(path, zerolog.Nop())
	if err := s.Load(); err != nil {
		t.Fatalf("Load 应成功: %v", err)
	}

	v := s.Get()
	if v.IntervalSec != 3 || v.ProxyProtocol != "socks5" || v.NotificationsMax != 10 {
		t.Fatalf("非法值应回落到默认: %+v", v)
	}
}

func TestUpdatePersistsAndNotifies(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	s := NewStore(path, zerolog.Nop())
	if err := s.Load(); err != nil {
		t.Fatal(err)
	}

	var notified Values
	calls := 0
	s.OnChange(func(v Values) {
		notified = v
		calls++
	})

	if err := s.Update(func(v *Values) { v.IntervalSec = 1.5 }); err != nil {
		t.Fatalf("Update 应成功: %v", err)
	}
	if calls != 1 || notified.IntervalSec != 1.5 {
		t.Fatalf("回调应收到新值: calls=%d %+v", calls, notified)
	}

	reloaded := NewStore(path, zerolog.Nop())
	if err := reloaded.Load(); err != nil {
		t.Fatal(err)
	}
	if reloaded.Get().IntervalSec != 1.5 {
		t.Fatalf("更新应落盘: %+v", reloaded.Get())
	}
}

func TestReloadNotifiesOnExternalChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	if err := os.WriteFile(path, []byte(`{"interval_sec": 3}`), 0o644); err != nil {
		t.Fatal(err)
	}

	s := NewStore(path, zerolog.Nop())
	if err := s.Load(); err != nil {
		t.Fatal(err)
	}

	calls := 0
	var notified Values
	s.OnChange(func(v Values) {
		notified = v
		calls++
	})

	// Unchanged file: no callback.
	if err := s.Reload(); err != nil {
		t.Fatalf("Reload 应成功: %v", err)
	}
	if calls != 0 {
		t.Fatalf("内容未变不应触发回调: %d", calls)
	}

	if err := os.WriteFile(path, []byte(`{"interval_sec": 1.5}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := s.Reload(); err != nil {
		t.Fatalf("Reload 应成功: %v", err)
	}
	if calls != 1 || notified.IntervalSec != 1.5 {
		t.Fatalf("外部修改应触发回调: calls=%d %+v", calls, notified)
	}
}

func TestWatchPicksUpFileChanges(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.json")
	if err := os.WriteFile(path, []byte(`{"interval_sec": 3}`), 0o644); err != nil {
		t.Fatal(err)
	}

	s := NewStore(path, zerolog.Nop())
	if err := s.Load(); err != nil {
		t.Fatal(err)
	}

	changed := make(chan Values, 4)
	s.OnChange(func(v Values) { changed <- v })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		_ = s.Watch(ctx)
		close(done)
	}()

	// Give the watcher a moment to register before mutating the file.
	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(path, []byte(`{"interval_sec": 0.5}`), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case v := <-changed:
		if v.IntervalSec != 0.5 {
			t.Fatalf("监听到的新值不正确: %+v", v)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("文件修改未被监听到")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("取消后 Watch 未退出")
	}
}

func TestSavePreservesUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	raw := []byte(`{"interval_sec": 2, "window_geometry": {"w": 800, "h": 600}, "theme": "dark"}`)
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatal(err)
	}

	s := NewStore(path, zerolog.Nop())
	if err := s.Load(); err != nil {
		t.Fatal(err)
	}
	if err := s.Update(func(v *Values) { v.IntervalSec = 5 }); err != nil {
		t.Fatal(err)
	}

	out, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(out, &doc); err != nil {
		t.Fatal(err)
	}
	if _, ok := doc["window_geometry"]; !ok {
		t.Fatal("未知字段应在保存后保留")
	}
	if _, ok := doc["theme"]; !ok {
		t.Fatal("未知字段应在保存后保留")
	}

	var v Values
	if err := json.Unmarshal(out, &v); err != nil {
		t.Fatal(err)
	}
	if v.IntervalSec != 5 {
		t.Fatalf("已知字段应更新: %+v", v)
	}
}
