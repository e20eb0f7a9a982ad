package catalog

import (
	"reflect"
	"testing"

	"go.uber.org/zap"

	"github.com/John-Robertt/CLMC/internal/domain"
	"github.com/John-Robertt/CLMC/internal/infra/blob"
	"github.com/John-Robertt/CLMC/internal/infra/meta"
)

func newTestStore(t *testing.T) (*Store, blob.Store, meta.FileStore) {
	t.Helper()
	root := t.TempDir()
	blobs := blob.New(root)
	m := meta.NewFileStore(root)
	return New(m, blobs, zap.NewNop()), blobs, m
}

func sampleCourse() domain.Course {
	return domain.Course{
		ID:    "c1",
		Title: "Go 进阶",
		Topics: []domain.Topic{
			{
				ID:    "t1",
				Title: "01 Basics",
				Videos: []domain.Video{
					{ID: "v1", Title: "01 intro", Path: "v1", Caption: "caption-v1"},
					{ID: "v2", Title: "02 setup", Path: "v2"},
				},
				Resources: []domain.Resource{{ID: "r1", Title: "notes", Path: "r1", Type: "pdf"}},
			},
			{
				ID:     "t2",
				Title:  "02 Advanced",
				Videos: []domain.Video{{ID: "v3", Title: "01 deep", Path: "v3"}},
			},
		},
	}
}

func TestLoadCourses_CorruptedResetsToEmpty(t *testing.T) {
	s, _, m := newTestStore(t)
	if err := m.Set(meta.KeyCourses, []byte("{not json")); err != nil {
		t.Fatalf("不期望错误：%v", err)
	}

	s.LoadCourses()
	if got := s.Courses(); len(got) != 0 {
		t.Fatalf("损坏文档应重置为空列表，实际 %d 个课程", len(got))
	}
}

func TestAddCourse_PersistsAndRoundTrips(t *testing.T) {
	s, _, m := newTestStore(t)
	s.LoadCourses()

	c := sampleCourse()
	s.AddCourse(c)

	// 重新加载：结构必须完整还原。
	s2 := New(m, blob.Store{}, zap.NewNop())
	s2.LoadCourses()
	got := s2.Courses()
	if len(got) != 1 {
		t.Fatalf("期望 1 个课程，实际 %d", len(got))
	}
	if !reflect.DeepEqual(got[0], c) {
		t.Fatalf("round-trip 不一致：\nin =%+v\nout=%+v", c, got[0])
	}
}

func TestAddCourse_Idempotent(t *testing.T) {
	s, _, _ := newTestStore(t)
	s.LoadCourses()

	s.AddCourse(sampleCourse())
	s.AddCourse(sampleCourse())

	if got := s.Courses(); len(got) != 1 {
		t.Fatalf("同 id 重复插入应 no-op，实际 %d 个课程", len(got))
	}
}

func TestSelectCourse_FallbackToFirstVideo(t *testing.T) {
	s, _, _ := newTestStore(t)
	s.LoadCourses()
	s.AddCourse(sampleCourse())

	s.SelectCourse("c1")
	sel := s.Current()
	if sel.Course == nil || sel.Topic == nil || sel.Video == nil {
		t.Fatalf("期望完整选择链，实际 %+v", sel)
	}
	if sel.Topic.ID != "t1" || sel.Video.ID != "v1" {
		t.Fatalf("无 lastViewed 应回退首 Topic 首 Video：topic=%s video=%s", sel.Topic.ID, sel.Video.ID)
	}
}

func TestSelectCourse_UsesLastViewed(t *testing.T) {
	s, _, _ := newTestStore(t)
	s.LoadCourses()
	c := sampleCourse()
	c.LastViewed = &domain.LastViewed{TopicID: "t2", VideoID: "v3"}
	s.AddCourse(c)

	s.SelectCourse("c1")
	sel := s.Current()
	if sel.Topic == nil || sel.Topic.ID != "t2" || sel.Video == nil || sel.Video.ID != "v3" {
		t.Fatalf("应按 lastViewed 定位：%+v", sel)
	}
}

func TestSelectCourse_StaleLastViewedFallsBack(t *testing.T) {
	s, _, _ := newTestStore(t)
	s.LoadCourses()
	c := sampleCourse()
	c.LastViewed = &domain.LastViewed{TopicID: "gone", VideoID: "gone"}
	s.AddCourse(c)

	s.SelectCourse("c1")
	sel := s.Current()
	if sel.Topic == nil || sel.Topic.ID != "t1" || sel.Video == nil || sel.Video.ID != "v1" {
		t.Fatalf("失效 lastViewed 应回退首 Topic 首 Video：%+v", sel)
	}
}

func TestSelectCourse_NoTopics(t *testing.T) {
	s, _, _ := newTestStore(t)
	s.LoadCourses()
	s.AddCourse(domain.Course{ID: "empty", Title: "空", Topics: []domain.Topic{}})

	s.SelectCourse("empty")
	sel := s.Current()
	if sel.Course == nil {
		t.Fatalf("课程应为活动状态")
	}
	if sel.Topic != nil || sel.Video != nil {
		t.Fatalf("无 Topic 的课程活动 Topic/Video 应为空：%+v", sel)
	}
}

func TestSelectVideo_UpdatesLastViewedAndPersists(t *testing.T) {
	s, _, m := newTestStore(t)
	s.LoadCourses()
	s.AddCourse(sampleCourse())

	s.SelectVideo("c1", "t2", "v3")

	sel := s.Current()
	if sel.Video == nil || sel.Video.ID != "v3" {
		t.Fatalf("活动视频应为 v3：%+v", sel)
	}

	// lastViewed 必须已持久化。
	s2 := New(m, blob.Store{}, zap.NewNop())
	s2.LoadCourses()
	got, _ := s2.Course("c1")
	if got.LastViewed == nil || got.LastViewed.TopicID != "t2" || got.LastViewed.VideoID != "v3" {
		t.Fatalf("lastViewed 未持久化：%+v", got.LastViewed)
	}
}

func TestSelectVideo_MissingChainNoOp(t *testing.T) {
	s, _, _ := newTestStore(t)
	s.LoadCourses()
	s.AddCourse(sampleCourse())

	s.SelectVideo("c1", "t1", "nope")
	s.SelectVideo("c1", "nope", "v1")
	s.SelectVideo("nope", "t1", "v1")

	got, _ := s.Course("c1")
	if got.LastViewed != nil {
		t.Fatalf("链路缺失时不应更新 lastViewed：%+v", got.LastViewed)
	}
}

func TestToggleVideoCompletion_SingleVideoCourse(t *testing.T) {
	s, _, _ := newTestStore(t)
	s.LoadCourses()
	s.AddCourse(domain.Course{
		ID: "c", Title: "单视频",
		Topics: []domain.Topic{{ID: "t", Title: "t", Videos: []domain.Video{{ID: "v", Title: "v", Path: "v"}}}},
	})

	p, ok := s.ToggleVideoCompletion("c", "t", "v")
	if !ok || p != 100 {
		t.Fatalf("首次翻转期望 progress=100，实际 %d ok=%v", p, ok)
	}
	p, ok = s.ToggleVideoCompletion("c", "t", "v")
	if !ok || p != 0 {
		t.Fatalf("二次翻转期望 progress=0，实际 %d ok=%v", p, ok)
	}
}

func TestToggleVideoCompletion_RecomputesAcrossTopics(t *testing.T) {
	s, _, m := newTestStore(t)
	s.LoadCourses()
	s.AddCourse(sampleCourse())

	p, ok := s.ToggleVideoCompletion("c1", "t1", "v1")
	if !ok || p != 33 {
		t.Fatalf("期望 progress=33（round(100*1/3)），实际 %d ok=%v", p, ok)
	}

	// 持久化校验。
	s2 := New(m, blob.Store{}, zap.NewNop())
	s2.LoadCourses()
	got, _ := s2.Course("c1")
	if got.Progress != 33 || !got.Topics[0].Videos[0].Completed {
		t.Fatalf("翻转未持久化：progress=%d completed=%v", got.Progress, got.Topics[0].Videos[0].Completed)
	}
}

func TestDeleteCourse_CascadesBlobsAndClearsActive(t *testing.T) {
	s, blobs, m := newTestStore(t)
	s.LoadCourses()

	for _, key := range []string{"v1", "caption-v1", "v2", "v3", "r1"} {
		if err := blobs.Put(key, []byte("x")); err != nil {
			t.Fatalf("写入 blob 失败：%v", err)
		}
	}
	s.AddCourse(sampleCourse())
	s.SelectCourse("c1")

	if err := s.DeleteCourse("c1"); err != nil {
		t.Fatalf("不期望错误：%v", err)
	}

	keys, _ := blobs.Keys()
	if len(keys) != 0 {
		t.Fatalf("课程名下 blob 应全部删除，残留：%v", keys)
	}

	sel := s.Current()
	if sel.Course != nil || sel.Topic != nil || sel.Video != nil {
		t.Fatalf("删除活动课程后应清空活动状态：%+v", sel)
	}

	// 重新加载：已删除课程不可再出现。
	s2 := New(m, blobs, zap.NewNop())
	s2.LoadCourses()
	if got := s2.Courses(); len(got) != 0 {
		t.Fatalf("重新加载不应返回已删除课程：%v", got)
	}
}

func TestDeleteCourse_BlobFailureDoesNotAbort(t *testing.T) {
	s, blobs, _ := newTestStore(t)
	s.LoadCourses()

	// 只放一部分 blob：其余删除会"失败"（不存在按幂等成功处理），
	// 再放一个非法 key 无法构造；这里验证缺失 blob 不影响整体删除。
	if err := blobs.Put("v1", []byte("x")); err != nil {
		t.Fatalf("写入 blob 失败：%v", err)
	}
	s.AddCourse(sampleCourse())

	if err := s.DeleteCourse("c1"); err != nil {
		t.Fatalf("blob 级失败不应中止删除：%v", err)
	}
	if got := s.Courses(); len(got) != 0 {
		t.Fatalf("课程应已移除：%v", got)
	}
}

func TestStorageLimit_DefaultAndSet(t *testing.T) {
	s, _, _ := newTestStore(t)

	if got := s.StorageLimit(); got != DefaultStorageLimit {
		t.Fatalf("期望默认上限 %d，实际 %d", DefaultStorageLimit, got)
	}

	if err := s.SetStorageLimit(1024); err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if got := s.StorageLimit(); got != 1024 {
		t.Fatalf("期望上限 1024，实际 %d", got)
	}

	if err := s.SetStorageLimit(0); err == nil {
		t.Fatalf("非正数上限必须拒绝")
	}
}

func TestStorageLimit_CorruptedFallsBack(t *testing.T) {
	s, _, m := newTestStore(t)
	if err := m.Set(meta.KeyStorageLimit, []byte("not-a-number")); err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if got := s.StorageLimit(); got != DefaultStorageLimit {
		t.Fatalf("损坏偏好应回退默认值，实际 %d", got)
	}
}

func TestStorageUsage(t *testing.T) {
	s, blobs, _ := newTestStore(t)
	if err := blobs.Put("k", []byte("12345")); err != nil {
		t.Fatalf("写入 blob 失败：%v", err)
	}

	used, limit, err := s.StorageUsage()
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if used != 5 || limit != DefaultStorageLimit {
		t.Fatalf("期望 used=5 limit=default，实际 used=%d limit=%d", used, limit)
	}
}
