package cache

import (
	"path/filepath"
	"strings"

	"github.com/MuxYang/ncmbot/logger"

	"github.com/fsnotify/fsnotify"
)

// Watcher 监听缓存目录，文件被外部删除或移走时立刻同步失效元数据
// 不依赖它保证正确性（命中时还有 VerifyAndMaybeInvalidate 兜底），
// 只是让元数据更早回到一致状态
type Watcher struct {
	store   *Store
	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewWatcher 创建并启动缓存目录监听
func NewWatcher(store *Store) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(store.Root()); err != nil {
		fw.Close()
		return nil, err
	}

	w := &Watcher{
		store:   store,
		watcher: fw,
		done:    make(chan struct{}),
	}
	go w.run()

	logger.Info("[CacheWatcher] 开始监听缓存目录", logger.String("dir", store.Root()))
	return w, nil
}

func (w *Watcher) run() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
				w.handleRemoved(event.Name)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logger.Warn("[CacheWatcher] 监听错误", logger.ErrorField(err))
		case <-w.done:
			return
		}
	}
}

// handleRemoved 文件名去掉扩展名即歌曲ID
func (w *Watcher) handleRemoved(path string) {
	base := filepath.Base(path)
	id := strings.TrimSuffix(base, filepath.Ext(base))
	if id == "" {
		return
	}

	track, err := w.store.Lookup(id)
	if err != nil || track == nil || !track.IsCached {
		return
	}

	// 复用命中校验的失效逻辑
	if _, err := w.store.VerifyAndMaybeInvalidate(track); err != nil {
		logger.Warn("[CacheWatcher] 同步失效失败",
			logger.String("trackId", id),
			logger.ErrorField(err))
	}
}

// Close 停止监听
func (w *Watcher) Close() error {
	close(w.done)
	return w.watcher.Close()
}
