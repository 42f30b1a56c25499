package pairs

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
)

type fakeValidator struct {
	err   error
	calls int
}

func (f *fakeValidator) ContractExists(ctx context.Context, base, quote string) error {
	f.calls++
	return f.err
}

func newTestRegistry(t *testing.T, validator SymbolValidator) (*Registry, *FileStore) {
	t.Helper()
	store := NewFileStore(filepath.Join(t.TempDir(), "tokens.json"))
	r := NewRegistry(store, validator, zerolog.Nop())
	if err := r.Load(); err != nil {
		t.Fatalf("Load 应成功: %v", err)
	}
	return r, store
}

func TestRegistryAddValidatesAndPersists(t *testing.T) {
	v := &fakeValidator{}
	r, store := newTestRegistry(t, v)

	if err := r.Add(context.Background(), New("SOL", "USDT")); err != nil {
		t.Fatalf("Add 应成功: %v", err)
	}
	if v.calls != 1 {
		t.Fatalf("应校验合约一次: %d", v.calls)
	}

	loaded, _, err := store.Load()
	if err != nil {
		t.Fatalf("持久化后应可读回: %v", err)
	}
	if _, ok := loaded["SOL-USDT"]; !ok {
		t.Fatal("新增的交易对未持久化")
	}
}

func TestRegistryAddRejectsUnknownContract(t *testing.T) {
	boom := errors.New("contract missing")
	r, _ := newTestRegistry(t, &fakeValidator{err: boom})

	err := r.Add(context.Background(), New("NOPE", "USDT"))
	if !errors.Is(err, boom) {
		t.Fatalf("校验失败应透传错误: %v", err)
	}
	if _, ok := r.Get("NOPE-USDT"); ok {
		t.Fatal("校验失败的交易对不应入册")
	}
}

func TestRegistryAddRejectsDuplicate(t *testing.T) {
	r, _ := newTestRegistry(t, nil)

	if err := r.Add(context.Background(), New("SOL", "USDT")); err != nil {
		t.Fatalf("首次 Add 应成功: %v", err)
	}
	if err := r.Add(context.Background(), New("SOL", "USDT")); err == nil {
		t.Fatal("重复 Add 应报错")
	}
}

func TestRegistryUpdateInPlace(t *testing.T) {
	r, store := newTestRegistry(t, nil)
	if err := r.Add(context.Background(), New("SOL", "USDT")); err != nil {
		t.Fatalf("Add 应成功: %v", err)
	}

	p, _ := r.Get("SOL-USDT")
	thr := 2.5
	p.DirectThreshold = &thr
	p.Pancake = &PancakeLeg{Address: "0xabc"}
	if err := r.Update(p); err != nil {
		t.Fatalf("Update 应成功: %v", err)
	}

	got, _ := r.Get("SOL-USDT")
	if got.DirectThreshold == nil || *got.DirectThreshold != 2.5 {
		t.Fatalf("阈值未更新: %v", got.DirectThreshold)
	}

	loaded, _, err := store.Load()
	if err != nil {
		t.Fatalf("持久化后应可读回: %v", err)
	}
	if loaded["SOL-USDT"].Pancake == nil || loaded["SOL-USDT"].Pancake.Address != "0xabc" {
		t.Fatal("更新的 pancake 地址未持久化")
	}
}

func TestRegistryUpdateUnknownPair(t *testing.T) {
	r, _ := newTestRegistry(t, nil)
	if err := r.Update(New("GHOST", "USDT")); err == nil {
		t.Fatal("更新不存在的交易对应报错")
	}
}

func TestRegistryRemoveClearsFavorite(t *testing.T) {
	r, _ := newTestRegistry(t, nil)
	if err := r.Add(context.Background(), New("SOL", "USDT")); err != nil {
		t.Fatalf("Add 应成功: %v", err)
	}
	r.SetFavorite("SOL-USDT", true)
	if favs := r.Favorites(); len(favs) != 1 {
		t.Fatalf("收藏应有 1 项: %v", favs)
	}

	r.Remove("SOL-USDT")
	if _, ok := r.Get("SOL-USDT"); ok {
		t.Fatal("删除后仍可读到交易对")
	}
	if favs := r.Favorites(); len(favs) != 0 {
		t.Fatalf("删除应同时清掉收藏: %v", favs)
	}
}

func TestRegistrySnapshotIsACopy(t *testing.T) {
	r, _ := newTestRegistry(t, nil)
	if err := r.Add(context.Background(), New("SOL", "USDT")); err != nil {
		t.Fatalf("Add 应成功: %v", err)
	}

	snap := r.Snapshot()
	delete(snap, "SOL-USDT")
	if _, ok := r.Get("SOL-USDT"); !ok {
		t.Fatal("修改快照影响了注册表本体")
	}
}

func TestRegistrySetCoingeckoID(t *testing.T) {
	r, _ := newTestRegistry(t, nil)
	if err := r.Add(context.Background(), New("SOL", "USDT")); err != nil {
		t.Fatalf("Add 应成功: %v", err)
	}

	r.SetCoingeckoID("SOL-USDT", "solana")
	got, _ := r.Get("SOL-USDT")
	if got.CoingeckoID != "solana" {
		t.Fatalf("cg_id 未写入: %q", got.CoingeckoID)
	}

	r.SetCoingeckoID("GHOST-USDT", "ghost")
	if _, ok := r.Get("GHOST-USDT"); ok {
		t.Fatal("未知交易对不应被创建")
	}
}
