// Package player 管理播放会话：把 Catalog 里选中的视频解析为可读的 blob 句柄，
// 并镜像播放器的传输状态（位置/时长/播放中）。
//
// 句柄生命周期：句柄进程内缓存（TTL 过期自动关闭），同一视频反复进出时
// 不反复开文件。Load 换片遵循"先释放再获取"：旧句柄先交还缓存、新句柄才
// 打开；交还的句柄留在缓存里等复用或 TTL 关闭。Close 立即关闭全部句柄。
package player

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/John-Robertt/CLMC/internal/catalog"
	"github.com/John-Robertt/CLMC/internal/domain"
	"github.com/John-Robertt/CLMC/internal/infra/blob"
)

// 句柄缓存的存活策略。过期即关闭底层文件。
const (
	handleTTL     = 30 * time.Minute
	handleCleanup = 5 * time.Minute
)

// 完成阈值：播放进度达到时长的 90% 即视为看完。
const completeRatio = 0.9

// Playback 是一次 Load 的产出：当前视频的元数据与已打开的 blob 句柄。
// CaptionFile 在视频没有字幕时为 nil。句柄归 Session 所有，调用方不要 Close。
type Playback struct {
	Video       domain.Video
	VideoFile   *os.File
	CaptionFile *os.File
}

// State 是传输状态镜像的快照。镜像只跟随事件，不反向驱动播放器。
type State struct {
	CourseID string
	TopicID  string
	VideoID  string

	Position  float64
	Duration  float64
	Playing   bool
	Completed bool

	Volume     float64
	Muted      bool
	Rate       float64
	Fullscreen bool
	CaptionsOn bool
}

// Session 是播放会话。单个 Session 同一时刻只有一个已加载视频；
// 方法并发安全。
type Session struct {
	blobs blob.Store
	cat   *catalog.Store
	log   *zap.Logger

	mu      sync.Mutex
	handles *gocache.Cache
	active  []string // 当前 Load 持有的缓存 key

	state         State
	hasCaption    bool
	autoCompleted bool
}

func NewSession(blobs blob.Store, cat *catalog.Store, log *zap.Logger) *Session {
	if log == nil {
		log = zap.NewNop()
	}
	c := gocache.New(handleTTL, handleCleanup)
	c.OnEvicted(func(key string, v interface{}) {
		if f, ok := v.(*os.File); ok {
			_ = f.Close()
		}
	})
	return &Session{blobs: blobs, cat: cat, log: log, handles: c}
}

// Load 加载指定视频：校验 course→topic→video 链路、更新 lastViewed、
// 解析视频与字幕句柄。链路缺失返回错误且不改变已加载状态。
func (s *Session) Load(courseID, topicID, videoID string) (Playback, error) {
	c, ok := s.cat.Course(courseID)
	if !ok {
		return Playback{}, fmt.Errorf("课程不存在：%s", courseID)
	}
	t := c.FindTopic(topicID)
	if t == nil {
		return Playback{}, fmt.Errorf("Topic 不存在：%s", topicID)
	}
	v := t.FindVideo(videoID)
	if v == nil {
		return Playback{}, fmt.Errorf("视频不存在：%s", videoID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// 先释放再获取：旧句柄交还缓存（续一个 TTL），再解析新句柄。
	s.releaseActiveLocked()

	vf, err := s.acquireLocked(v.Path)
	if err != nil {
		return Playback{}, fmt.Errorf("打开视频失败：%w", err)
	}

	var cf *os.File
	if v.Caption != "" {
		cf, err = s.acquireLocked(v.Caption)
		if err != nil {
			// 字幕缺失降级为无字幕播放，不阻断视频。
			s.log.Warn("打开字幕失败", zap.String("key", v.Caption), zap.Error(err))
			cf = nil
		}
	}

	s.cat.SelectVideo(courseID, topicID, videoID)

	// 音量/倍速跨视频保留；首次加载取播放器默认值。
	volume, rate, muted := s.state.Volume, s.state.Rate, s.state.Muted
	if s.state.VideoID == "" {
		volume, rate = 1, 1
	}
	s.state = State{
		CourseID:   courseID,
		TopicID:    topicID,
		VideoID:    videoID,
		Duration:   v.Duration,
		Completed:  v.Completed,
		Volume:     volume,
		Muted:      muted,
		Rate:       rate,
		CaptionsOn: cf != nil,
	}
	s.hasCaption = cf != nil
	s.autoCompleted = false

	return Playback{Video: *v, VideoFile: vf, CaptionFile: cf}, nil
}

// acquireLocked 从缓存取句柄；命中时回绕到文件头，未命中则打开并入缓存。
func (s *Session) acquireLocked(key string) (*os.File, error) {
	if v, ok := s.handles.Get(key); ok {
		f := v.(*os.File)
		if _, err := f.Seek(0, io.SeekStart); err == nil {
			s.markActiveLocked(key)
			return f, nil
		}
		// 回绕失败按句柄失效处理，重开。
		s.handles.Delete(key)
	}

	f, err := s.blobs.Open(key)
	if err != nil {
		return nil, err
	}
	s.handles.SetDefault(key, f)
	s.markActiveLocked(key)
	return f, nil
}

func (s *Session) markActiveLocked(key string) {
	s.active = append(s.active, key)
}

func (s *Session) releaseActiveLocked() {
	for _, key := range s.active {
		// 交还缓存：重置 TTL，句柄留待复用或到期关闭。
		if v, ok := s.handles.Get(key); ok {
			s.handles.SetDefault(key, v)
		}
	}
	s.active = nil
}

// OnTimeUpdate 推进传输状态。进度首次达到时长的 90% 且视频尚未完成时，
// 自动标记完成（每次 Load 至多触发一次）。
func (s *Session) OnTimeUpdate(position, duration float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.VideoID == "" {
		return
	}
	s.state.Position = position
	if duration > 0 {
		s.state.Duration = duration
	}

	if s.autoCompleted || s.state.Completed {
		return
	}
	if duration <= 0 || position < duration*completeRatio {
		return
	}
	s.autoCompleted = true
	if _, ok := s.cat.ToggleVideoCompletion(s.state.CourseID, s.state.TopicID, s.state.VideoID); ok {
		s.state.Completed = true
	}
}

func (s *Session) OnPlay() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.VideoID != "" {
		s.state.Playing = true
	}
}

func (s *Session) OnPause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Playing = false
}

// OnVolumeChange 跟随播放器的音量事件（volume 取值 [0,1]）。
func (s *Session) OnVolumeChange(volume float64, muted bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if volume < 0 {
		volume = 0
	}
	if volume > 1 {
		volume = 1
	}
	s.state.Volume = volume
	s.state.Muted = muted
}

// OnRateChange 跟随倍速事件；非正值忽略。
func (s *Session) OnRateChange(rate float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rate > 0 {
		s.state.Rate = rate
	}
}

func (s *Session) OnFullscreenChange(fullscreen bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Fullscreen = fullscreen
}

// ToggleCaptions 翻转字幕显示；当前视频没有字幕时 no-op 并返回 false。
func (s *Session) ToggleCaptions() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.hasCaption {
		return false
	}
	s.state.CaptionsOn = !s.state.CaptionsOn
	return s.state.CaptionsOn
}

// OnEnded 播放结束：停止播放并把位置钉在末尾。
func (s *Session) OnEnded() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Playing = false
	if s.state.Duration > 0 {
		s.state.Position = s.state.Duration
	}
}

// ToggleCompletion 手动翻转当前视频的完成标记，返回翻转后的课程进度。
func (s *Session) ToggleCompletion() (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.VideoID == "" {
		return 0, false
	}
	progress, ok := s.cat.ToggleVideoCompletion(s.state.CourseID, s.state.TopicID, s.state.VideoID)
	if ok {
		s.state.Completed = !s.state.Completed
	}
	return progress, ok
}

// State 返回传输状态快照。
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Close 释放全部句柄并清空已加载状态。Session 此后不可再用。
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.active = nil
	for key := range s.handles.Items() {
		s.handles.Delete(key)
	}
	s.state = State{}
	s.hasCaption = false
	s.autoCompleted = false
}
