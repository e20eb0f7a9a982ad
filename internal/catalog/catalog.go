// Package catalog 持有权威的内存课程列表，并在每次变更时镜像到 Metadata Store。
//
// 并发契约：所有读写都经由同一把进程内互斥锁。Metadata Store 的课程文档是
// 单一共享文档，每个 mutator 都做整文档 read-modify-write（最后写入者胜，
// 不做乐观并发控制）。
package catalog

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/John-Robertt/CLMC/internal/domain"
	"github.com/John-Robertt/CLMC/internal/infra/blob"
	"github.com/John-Robertt/CLMC/internal/infra/meta"
)

// DefaultStorageLimit 是存储上限偏好的默认值（25 GiB）。
const DefaultStorageLimit int64 = 25 * 1024 * 1024 * 1024

// Store 是 Catalog Store。
type Store struct {
	mu    sync.Mutex
	meta  meta.Store
	blobs blob.Store
	log   *zap.Logger

	courses []domain.Course

	// 活动选择只存 id；对外快照时再解析，避免指针悬挂到被替换的切片里。
	currentCourseID string
	currentTopicID  string
	currentVideoID  string
}

// Selection 是当前活动状态的深拷贝快照（Topic/Video 指向 Course 内部）。
type Selection struct {
	Course *domain.Course
	Topic  *domain.Topic
	Video  *domain.Video
}

func New(m meta.Store, b blob.Store, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{meta: m, blobs: b, log: log}
}

// LoadCourses 用持久化列表替换内存状态。
// 反序列化失败时重置为空列表并记录日志——绝不向调用方抛错。
func (s *Store) LoadCourses() {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok, err := s.meta.Get(meta.KeyCourses)
	if err != nil {
		s.log.Warn("读取课程列表失败，按空列表处理", zap.Error(err))
		s.courses = []domain.Course{}
		return
	}
	if !ok {
		s.courses = []domain.Course{}
		return
	}

	var courses []domain.Course
	if err := json.Unmarshal(b, &courses); err != nil {
		s.log.Warn("课程列表反序列化失败，重置为空列表", zap.Error(err))
		s.courses = []domain.Course{}
		return
	}
	if courses == nil {
		courses = []domain.Course{}
	}
	s.courses = courses
}

// Courses 返回全部课程的深拷贝快照。
func (s *Store) Courses() []domain.Course {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.Course, 0, len(s.courses))
	for i := range s.courses {
		out = append(out, cloneCourse(&s.courses[i]))
	}
	return out
}

// Course 按 id 返回课程的深拷贝。
func (s *Store) Course(courseID string) (domain.Course, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.findLocked(courseID)
	if c == nil {
		return domain.Course{}, false
	}
	return cloneCourse(c), true
}

// SelectCourse 设置活动课程：lastViewed 仍有效则据此定位，
// 否则回退到首 Topic 的首 Video；无 Topic 时活动 Topic/Video 置空。
func (s *Store) SelectCourse(courseID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.findLocked(courseID)
	if c == nil {
		s.currentCourseID, s.currentTopicID, s.currentVideoID = "", "", ""
		return
	}

	s.currentCourseID = c.ID
	s.currentTopicID, s.currentVideoID = "", ""

	if lv := c.LastViewed; lv != nil {
		if t := c.FindTopic(lv.TopicID); t != nil {
			s.currentTopicID = t.ID
			if v := t.FindVideo(lv.VideoID); v != nil {
				s.currentVideoID = v.ID
			}
		}
	}

	// lastViewed 缺失或已失效：回退首 Topic/首 Video。
	if s.currentTopicID == "" && len(c.Topics) > 0 {
		s.currentTopicID = c.Topics[0].ID
		if len(c.Topics[0].Videos) > 0 {
			s.currentVideoID = c.Topics[0].Videos[0].ID
		}
	}
}

// SelectVideo 校验 course→topic→video 链路；任一环缺失则 no-op。
// 成功时更新该课程的 lastViewed、持久化并设为活动。
func (s *Store) SelectVideo(courseID, topicID, videoID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.findLocked(courseID)
	if c == nil {
		return
	}
	t := c.FindTopic(topicID)
	if t == nil {
		return
	}
	if t.FindVideo(videoID) == nil {
		return
	}

	c.LastViewed = &domain.LastViewed{TopicID: topicID, VideoID: videoID}
	s.persistLocked()

	s.currentCourseID = courseID
	s.currentTopicID = topicID
	s.currentVideoID = videoID
}

// ToggleVideoCompletion 翻转完成标记，全量重算课程 Progress 并持久化。
// 链路缺失时 no-op。返回翻转后的课程 Progress。
func (s *Store) ToggleVideoCompletion(courseID, topicID, videoID string) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.findLocked(courseID)
	if c == nil {
		return 0, false
	}
	t := c.FindTopic(topicID)
	if t == nil {
		return 0, false
	}
	v := t.FindVideo(videoID)
	if v == nil {
		return 0, false
	}

	v.Completed = !v.Completed
	c.RecomputeProgress()
	s.persistLocked()
	return c.Progress, true
}

// AddCourse 追加课程并持久化；同 id 已存在则幂等 no-op。
func (s *Store) AddCourse(course domain.Course) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.findLocked(course.ID) != nil {
		return
	}
	s.courses = append(s.courses, cloneCourse(&course))
	s.persistLocked()
}

// DeleteCourse 逐项 best-effort 删除课程名下的全部 blob（含字幕），
// 再把课程移出列表并持久化。单个 blob 删除失败只记日志，不中止整体删除；
// 仅当列表本身的移除/持久化失败时向调用方报错。
func (s *Store) DeleteCourse(courseID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.findLocked(courseID)
	if c == nil {
		return fmt.Errorf("课程不存在：%q", courseID)
	}

	for _, key := range c.BlobKeys() {
		if err := s.blobs.Delete(key); err != nil {
			s.log.Warn("删除 blob 失败（继续）",
				zap.String("course_id", courseID),
				zap.String("key", key),
				zap.Error(err),
			)
		}
	}

	kept := make([]domain.Course, 0, len(s.courses)-1)
	for i := range s.courses {
		if s.courses[i].ID != courseID {
			kept = append(kept, s.courses[i])
		}
	}
	s.courses = kept

	if err := s.saveLocked(); err != nil {
		return fmt.Errorf("更新课程列表失败：%w", err)
	}

	if s.currentCourseID == courseID {
		s.currentCourseID, s.currentTopicID, s.currentVideoID = "", "", ""
	}
	return nil
}

// Current 返回当前活动选择的深拷贝快照（字段可能为 nil）。
func (s *Store) Current() Selection {
	s.mu.Lock()
	defer s.mu.Unlock()

	sel := Selection{}
	c := s.findLocked(s.currentCourseID)
	if c == nil {
		return sel
	}
	clone := cloneCourse(c)
	sel.Course = &clone
	if t := clone.FindTopic(s.currentTopicID); t != nil {
		sel.Topic = t
		if v := t.FindVideo(s.currentVideoID); v != nil {
			sel.Video = v
		}
	}
	return sel
}

// StorageLimit 返回存储上限偏好；缺失或损坏时返回默认值。
func (s *Store) StorageLimit() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok, err := s.meta.Get(meta.KeyStorageLimit)
	if err != nil || !ok {
		return DefaultStorageLimit
	}
	n, err := strconv.ParseInt(strings.TrimSpace(string(b)), 10, 64)
	if err != nil || n <= 0 {
		s.log.Warn("存储上限偏好损坏，使用默认值", zap.String("raw", string(b)))
		return DefaultStorageLimit
	}
	return n
}

// SetStorageLimit 持久化存储上限偏好（字节）。
func (s *Store) SetStorageLimit(limit int64) error {
	if limit <= 0 {
		return fmt.Errorf("存储上限必须为正数，实际 %d", limit)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.meta.Set(meta.KeyStorageLimit, []byte(strconv.FormatInt(limit, 10)))
}

// StorageUsage 返回 Blob Store 当前占用与上限。
func (s *Store) StorageUsage() (used, limit int64, err error) {
	used, err = s.blobs.TotalSize()
	if err != nil {
		return 0, 0, err
	}
	return used, s.StorageLimit(), nil
}

func (s *Store) findLocked(courseID string) *domain.Course {
	if courseID == "" {
		return nil
	}
	for i := range s.courses {
		if s.courses[i].ID == courseID {
			return &s.courses[i]
		}
	}
	return nil
}

// persistLocked 持久化课程列表；失败只记日志（已知缺口：保存错误被吞）。
func (s *Store) persistLocked() {
	if err := s.saveLocked(); err != nil {
		s.log.Warn("课程列表持久化失败", zap.Error(err))
	}
}

func (s *Store) saveLocked() error {
	courses := s.courses
	if courses == nil {
		courses = []domain.Course{}
	}
	b, err := json.Marshal(courses)
	if err != nil {
		return err
	}
	return s.meta.Set(meta.KeyCourses, b)
}

func cloneCourse(c *domain.Course) domain.Course {
	out := *c
	if c.LastViewed != nil {
		lv := *c.LastViewed
		out.LastViewed = &lv
	}
	out.Topics = make([]domain.Topic, len(c.Topics))
	for i := range c.Topics {
		t := c.Topics[i]
		t.Videos = append([]domain.Video(nil), c.Topics[i].Videos...)
		if c.Topics[i].Resources != nil {
			t.Resources = append([]domain.Resource(nil), c.Topics[i].Resources...)
		}
		out.Topics[i] = t
	}
	return out
}
