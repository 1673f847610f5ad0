package main

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"drumbot/motion"
)

////////////////////////////////////////////////////////////////////////////////
// 乐谱文件扫描器模块
////////////////////////////////////////////////////////////////////////////////

// ScoreFileScanner 乐谱文件扫描器
type ScoreFileScanner struct {
	fileReader *FileReader
}

// NewScoreFileScanner 创建新的乐谱文件扫描器
func NewScoreFileScanner() *ScoreFileScanner {
	return &ScoreFileScanner{
		fileReader: NewFileReader(),
	}
}

// ScanScoreFiles 扫描乐谱文件夹（解析失败的文件也会列出，并带上错误信息）
func (sfs *ScoreFileScanner) ScanScoreFiles(dir string, search string) ([]ScoreFileInfo, error) {
	files := []ScoreFileInfo{}

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		// 只处理JSON和MIDI文件
		if d.IsDir() || scoreFormat(d.Name()) == "" {
			return nil
		}

		// 搜索过滤
		if search != "" && !strings.Contains(strings.ToLower(d.Name()), strings.ToLower(search)) {
			return nil
		}

		fileInfo := sfs.ExtractScoreFileInfo(path)
		if fileInfo != nil {
			files = append(files, *fileInfo)
		}

		return nil
	})

	if err != nil {
		return nil, err
	}

	// 按文件名排序
	sort.Slice(files, func(i, j int) bool {
		return files[i].Filename < files[j].Filename
	})

	return files, nil
}

// ExtractScoreFileInfo 提取乐谱文件信息
func (sfs *ScoreFileScanner) ExtractScoreFileInfo(fpath string) *ScoreFileInfo {
	stat, err := os.Stat(fpath)
	if err != nil {
		return nil
	}

	info := &ScoreFileInfo{
		Filename:   filepath.Base(fpath),
		Format:     scoreFormat(fpath),
		Tracks:     []ScoreTrackInfo{},
		FilePath:   fpath,
		FileSize:   stat.Size(),
		ModifiedAt: stat.ModTime().Format("2006-01-02 15:04:05"),
	}

	score, err := sfs.fileReader.LoadScore(fpath)
	if err != nil {
		info.InvalidError = err.Error()
		return info
	}

	info.Tracks = summarizeTracks(score)
	for _, track := range info.Tracks {
		if track.LoopDuration > info.MaxLoopSec {
			info.MaxLoopSec = track.LoopDuration
		}
	}
	return info
}

// summarizeTracks 音轨概要
func summarizeTracks(score motion.Score) []ScoreTrackInfo {
	tracks := []ScoreTrackInfo{}
	for _, track := range score.Tracks() {
		tracks = append(tracks, ScoreTrackInfo{
			Name:         track.Name,
			BPM:          track.BPM,
			TotalBeats:   track.TotalBeats,
			Notes:        track.NoteCount(),
			LoopDuration: track.LoopDuration(),
		})
	}
	return tracks
}
