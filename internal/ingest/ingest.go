// Package ingest 实现文件夹入库流水线：把一棵课程目录树变成已持久化的 Course。
//
// 两遍算法：
//  1. 扫描遍：枚举根目录的直接子目录（候选 Topic），统计受支持文件总数
//     （只做进度分母；为零则以用户可见错误中止）
//  2. 物化遍：逐 Topic 列出文件，按固定优先级处理——先视频、再资源、后字幕——
//     写 blob、配对同名字幕、组装 Topic；文件级失败记日志后跳过
//
// 遍历深度固定为一层：根的直接子目录是 Topic，Topic 的直接子项是叶子文件；
// 更深的嵌套不遍历。所有文件严格串行处理（不做并发 blob 写），保证进度精确。
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/John-Robertt/CLMC/internal/caption"
	"github.com/John-Robertt/CLMC/internal/catalog"
	"github.com/John-Robertt/CLMC/internal/domain"
	"github.com/John-Robertt/CLMC/internal/infra/blob"
	"github.com/John-Robertt/CLMC/internal/infra/dirio"
	"github.com/John-Robertt/CLMC/internal/infra/fsx"
	"github.com/John-Robertt/CLMC/internal/title"
)

// Pipeline 持有 ingest 的全部依赖。零值不可用，经 New 构造。
type Pipeline struct {
	library string
	blobs   blob.Store
	catalog *catalog.Store
	log     *zap.Logger
}

func New(library string, blobs blob.Store, cat *catalog.Store, log *zap.Logger) *Pipeline {
	if log == nil {
		log = zap.NewNop()
	}
	return &Pipeline{
		library: filepath.Clean(strings.TrimSpace(library)),
		blobs:   blobs,
		catalog: cat,
		log:     log,
	}
}

// topicPlan 是扫描遍对单个候选 Topic 的产出：目录项快照 + 受支持文件数。
// 物化遍必须复用该快照（字幕配对要求"同一份目录列表"）。
type topicPlan struct {
	title   string
	entries []dirio.Entry
	counted int
}

// Run 执行一次入库。
//
// 输入是一组"拖入"的目录项；其中应恰好有一个目录（课程根）。
// 返回值：成功时 Course 非 nil 且已持久化；用户可见失败返回 *Error，
// 此时不留任何半成品持久化状态。nil observer 合法。
func (p *Pipeline) Run(ctx context.Context, dropped []dirio.Entry, obs Observer) (*domain.Course, *domain.IngestReport, error) {
	started := time.Now().UTC()

	root := findRoot(dropped)
	if root == nil {
		return nil, nil, &Error{Code: domain.ErrCodeNoDirectory, Msg: "请拖入一个包含课程资料的文件夹"}
	}

	if obs != nil {
		obs.OnStart(root.Name())
	}

	// 存储上限前置检查：超限是警告，不碰任何数据。
	used, err := p.blobs.TotalSize()
	if err != nil {
		return nil, nil, &Error{Code: domain.ErrCodeIOFailed, Msg: fmt.Sprintf("读取存储占用失败：%v", err)}
	}
	if limit := p.catalog.StorageLimit(); used >= limit {
		return nil, nil, &Error{
			Code: domain.ErrCodeStorageLimit,
			Msg:  fmt.Sprintf("存储占用 %d 字节已达上限 %d 字节；请删除课程或调高上限后重试", used, limit),
		}
	}

	// ---- 扫描遍（进度 0–10）----
	scanStarted := time.Now()
	plans, total, err := p.scan(ctx, root, obs)
	if err != nil {
		return nil, nil, err
	}
	if total == 0 {
		return nil, nil, &Error{Code: domain.ErrCodeNoSupportedFiles, Msg: "文件夹中没有受支持的视频或资料文件"}
	}
	if obs != nil {
		obs.OnPhaseDone("scan", map[string]any{
			"topics":      len(plans),
			"total_files": total,
		}, time.Since(scanStarted))
	}

	// ---- 物化遍（进度 10–90）----
	matStarted := time.Now()
	report := &domain.IngestReport{
		Library:     p.library,
		CourseTitle: root.Name(),
		StartedAt:   started,
	}

	topics, written, err := p.materialize(ctx, plans, total, report, obs)
	if err != nil {
		// 协作式取消：清掉本次已写入的 blob，不留半成品。
		p.cleanup(written)
		return nil, nil, err
	}
	if len(topics) == 0 {
		p.cleanup(written)
		return nil, nil, &Error{Code: domain.ErrCodeNoSupportedFiles, Msg: "没有任何文件成功入库"}
	}
	if obs != nil {
		fields := map[string]any{
			"topics":    len(topics),
			"videos":    report.Summary.Videos,
			"resources": report.Summary.Resources,
			"captions":  report.Summary.Captions,
			"skipped":   len(report.Skipped),
		}
		obs.OnPhaseDone("materialize", fields, time.Since(matStarted))
	}

	// ---- 组装与持久化（进度 90–100）----
	persistStarted := time.Now()
	if obs != nil {
		obs.OnProgress(90, "组装课程")
	}

	// 入库时排序一次（展示层还会再排一次，两处规则一致，遍历顺序不泄漏）。
	for i := range topics {
		domain.SortVideos(topics[i].Videos)
		domain.SortResources(topics[i].Resources)
	}
	domain.SortTopics(topics)

	course := &domain.Course{
		ID:       domain.NewID(),
		Title:    root.Name(),
		Topics:   topics,
		Progress: 0,
	}
	p.catalog.AddCourse(*course)

	report.CourseID = course.ID
	report.Summary.Topics = len(topics)
	report.FinishedAt = time.Now().UTC()
	report.Finalize()
	p.writeReport(report)

	if obs != nil {
		obs.OnPhaseDone("persist", map[string]any{"course_id": course.ID}, time.Since(persistStarted))
		obs.OnProgress(100, "完成")
	}
	return course, report, nil
}

// findRoot 在拖入项中找课程根：第一个目录项。
func findRoot(dropped []dirio.Entry) dirio.Dir {
	for _, e := range dropped {
		if d, ok := e.(dirio.Dir); ok {
			return d
		}
	}
	return nil
}

func (p *Pipeline) scan(ctx context.Context, root dirio.Dir, obs Observer) ([]topicPlan, int, error) {
	rootEntries, err := dirio.ReadAll(ctx, root.Reader())
	if err != nil {
		if ctx.Err() != nil {
			return nil, 0, &Error{Code: domain.ErrCodeCancelled, Msg: "入库已取消"}
		}
		// 根目录读取出错：已读到的部分继续用（best-effort）。
		p.log.Warn("课程根目录读取不完整", zap.String("root", root.Name()), zap.Error(err))
	}

	dirs := make([]dirio.Dir, 0, len(rootEntries))
	for _, e := range rootEntries {
		if d, ok := e.(dirio.Dir); ok {
			dirs = append(dirs, d)
		}
	}

	plans := make([]topicPlan, 0, len(dirs))
	total := 0
	for i, d := range dirs {
		if err := ctx.Err(); err != nil {
			return nil, 0, &Error{Code: domain.ErrCodeCancelled, Msg: "入库已取消"}
		}

		entries, err := dirio.ReadAll(ctx, d.Reader())
		if err != nil {
			// Topic 级读取出错：未读到的剩余当作不存在（best-effort 部分 Topic）。
			p.log.Warn("Topic 目录读取不完整", zap.String("topic", d.Name()), zap.Error(err))
		}

		counted := 0
		for _, e := range entries {
			if _, ok := e.(dirio.File); !ok {
				continue
			}
			if Classify(e.Name()) != KindUnsupported {
				counted++
			}
		}
		total += counted
		plans = append(plans, topicPlan{title: d.Name(), entries: entries, counted: counted})

		if obs != nil {
			obs.OnProgress((i+1)*10/len(dirs), "扫描 "+d.Name())
		}
	}
	return plans, total, nil
}

// materialize 逐 Topic 处理文件。返回组装好的 Topic 与本次写入的全部 blob key
// （取消时供调用方回收）。
func (p *Pipeline) materialize(ctx context.Context, plans []topicPlan, total int, report *domain.IngestReport, obs Observer) ([]domain.Topic, []string, error) {
	written := make([]string, 0, total)
	processed := 0

	tick := func(topicName, fileName string) {
		processed++
		if obs != nil {
			obs.OnProgress(10+processed*80/total, topicName+"/"+fileName)
		}
	}
	fileDone := func(topic, name, status, reason string) {
		if obs != nil {
			obs.OnFileDone(topic, name, status, reason)
		}
	}

	topics := make([]domain.Topic, 0, len(plans))
	for _, plan := range plans {
		t, err := p.materializeTopic(ctx, plan, report, &written, tick, fileDone)
		if err != nil {
			return nil, written, err
		}
		// 不变量：空 Topic（0 视频且 0 资源）不入 Course。
		if len(t.Videos) == 0 && len(t.Resources) == 0 {
			continue
		}
		topics = append(topics, t)
	}
	return topics, written, nil
}

func (p *Pipeline) materializeTopic(ctx context.Context, plan topicPlan, report *domain.IngestReport, written *[]string, tick func(topic, file string), fileDone func(topic, name, status, reason string)) (domain.Topic, error) {
	t := domain.Topic{
		ID:     domain.NewID(),
		Title:  plan.title,
		Videos: []domain.Video{},
	}

	// 按类别切分目录项，保持交付顺序；处理优先级固定：视频 → 资源 → 字幕。
	// 这样字幕总能（在后）配对到已知的视频 id，且昂贵的 blob 写不被琐碎查找拖后。
	var videos, resources, captions []dirio.File
	for _, e := range plan.entries {
		f, ok := e.(dirio.File)
		if !ok {
			continue
		}
		switch Classify(f.Name()) {
		case KindVideo:
			videos = append(videos, f)
		case KindResource:
			resources = append(resources, f)
		case KindCaption:
			captions = append(captions, f)
		}
	}

	// 以小写基名索引字幕，供视频步骤做同名配对；.vtt 优先于 .srt。
	capByBase := make(map[string]dirio.File, len(captions))
	consumed := make(map[string]bool, len(captions))
	for _, f := range captions {
		base := strings.ToLower(title.FromFileName(f.Name()))
		prev, ok := capByBase[base]
		if ok && strings.EqualFold(filepath.Ext(prev.Name()), ".vtt") {
			continue
		}
		if !ok || strings.EqualFold(filepath.Ext(f.Name()), ".vtt") {
			capByBase[base] = f
		}
	}

	skip := func(name, reason string) {
		p.log.Warn("文件跳过",
			zap.String("topic", plan.title),
			zap.String("file", name),
			zap.String("reason", reason),
		)
		report.Skipped = append(report.Skipped, domain.SkippedFile{
			Topic: plan.title, Name: name, Reason: reason,
		})
		fileDone(plan.title, name, "skip", reason)
	}

	for _, f := range videos {
		if err := ctx.Err(); err != nil {
			return domain.Topic{}, &Error{Code: domain.ErrCodeCancelled, Msg: "入库已取消"}
		}

		data, err := f.Bytes(ctx)
		if err != nil {
			skip(f.Name(), fmt.Sprintf("读取失败：%v", err))
			tick(plan.title, f.Name())
			continue
		}

		id := domain.NewID()
		if err := p.blobs.Put(id, data); err != nil {
			skip(f.Name(), fmt.Sprintf("写入 blob 失败：%v", err))
			tick(plan.title, f.Name())
			continue
		}
		*written = append(*written, id)

		v := domain.Video{
			ID:    id,
			Title: title.FromFileName(f.Name()),
			Path:  id,
		}

		// 同一份目录列表内配对同名字幕。
		base := strings.ToLower(title.FromFileName(f.Name()))
		if cf, ok := capByBase[base]; ok && !consumed[base] {
			consumed[base] = true
			if key, err := p.storeCaption(ctx, cf, id); err != nil {
				skip(cf.Name(), fmt.Sprintf("字幕入库失败：%v", err))
			} else {
				v.Caption = key
				*written = append(*written, key)
				report.Summary.Captions++
				fileDone(plan.title, cf.Name(), "ok", "")
			}
			tick(plan.title, cf.Name())
		}

		t.Videos = append(t.Videos, v)
		report.Summary.Videos++
		fileDone(plan.title, f.Name(), "ok", "")
		tick(plan.title, f.Name())
	}

	for _, f := range resources {
		if err := ctx.Err(); err != nil {
			return domain.Topic{}, &Error{Code: domain.ErrCodeCancelled, Msg: "入库已取消"}
		}

		data, err := f.Bytes(ctx)
		if err != nil {
			skip(f.Name(), fmt.Sprintf("读取失败：%v", err))
			tick(plan.title, f.Name())
			continue
		}

		id := domain.NewID()
		if err := p.blobs.Put(id, data); err != nil {
			skip(f.Name(), fmt.Sprintf("写入 blob 失败：%v", err))
			tick(plan.title, f.Name())
			continue
		}
		*written = append(*written, id)

		ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(f.Name()), "."))
		rt := title.FromFileName(f.Name())
		if ext == "html" {
			// HTML 资料优先用文档 <title> 做展示标题，失败回退文件名。
			if ht, ok := title.FromHTML(data); ok {
				rt = ht
			}
		}

		t.Resources = append(t.Resources, domain.Resource{
			ID:    id,
			Title: rt,
			Path:  id,
			Type:  ext,
		})
		report.Summary.Resources++
		fileDone(plan.title, f.Name(), "ok", "")
		tick(plan.title, f.Name())
	}

	// 残余字幕：没有配对到任何视频，或同基名下落选。不算失败，只是不入库。
	for _, f := range captions {
		base := strings.ToLower(title.FromFileName(f.Name()))
		switch {
		case consumed[base] && capByBase[base] == f:
			continue
		case consumed[base]:
			skip(f.Name(), "同基名字幕已有优先格式入库")
		default:
			skip(f.Name(), "没有同名视频可配对")
		}
		tick(plan.title, f.Name())
	}

	return t, nil
}

// storeCaption 把字幕文件写入 Blob Store（key=caption-{videoID}）。
// .srt 先转换为 WebVTT；.vtt 原样入库。
func (p *Pipeline) storeCaption(ctx context.Context, f dirio.File, videoID string) (string, error) {
	data, err := f.Bytes(ctx)
	if err != nil {
		return "", err
	}
	if strings.EqualFold(filepath.Ext(f.Name()), ".srt") {
		data, err = caption.ConvertSRT(data)
		if err != nil {
			return "", err
		}
	}
	key := domain.CaptionKey(videoID)
	if err := p.blobs.Put(key, data); err != nil {
		return "", err
	}
	return key, nil
}

// cleanup best-effort 删除本次运行写入的 blob（用于取消/全败路径）。
func (p *Pipeline) cleanup(written []string) {
	for _, key := range written {
		if err := p.blobs.Delete(key); err != nil {
			p.log.Warn("回收 blob 失败", zap.String("key", key), zap.Error(err))
		}
	}
}

// writeReport 把 report 写到 <library>/reports/<courseID>.json（覆盖式原子写）。
// 写失败只记日志：report 是辅助产物，不影响入库成败。
func (p *Pipeline) writeReport(r *domain.IngestReport) {
	b, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		p.log.Warn("report 序列化失败", zap.Error(err))
		return
	}
	b = append(b, '\n')
	dir := filepath.Join(p.library, "reports")
	if err := fsx.WriteFileAtomicReplace(dir, r.CourseID+".json", b); err != nil {
		p.log.Warn("report 写入失败", zap.String("dir", dir), zap.Error(err))
	}
}
