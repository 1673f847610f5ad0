package main

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/gin-gonic/gin"

	"drumbot/motion"
)

////////////////////////////////////////////////////////////////////////////////
// Web服务模块
////////////////////////////////////////////////////////////////////////////////

// WebServer Web服务器
type WebServer struct {
	cfg          Config
	fileReader   *FileReader
	scoreScanner *ScoreFileScanner
	preprocessor *SchedulePreprocessor
	commandLog   *CommandLog // 可为空（数据库打开失败时）
	newSender    func(Config) (ActuatorSender, error)
}

// NewWebServer 创建新的Web服务器
func NewWebServer(cfg Config, commandLog *CommandLog) *WebServer {
	return &WebServer{
		cfg:          cfg,
		fileReader:   NewFileReader(),
		scoreScanner: NewScoreFileScanner(),
		preprocessor: NewSchedulePreprocessor(),
		commandLog:   commandLog,
		newSender:    NewActuatorSender,
	}
}

// setupRouter 注册全部路由
func (ws *WebServer) setupRouter() *gin.Engine {
	// 创建轻量级路由（不使用默认的Logger和Recovery中间件）
	r := gin.New()

	// 只添加必要的中间件
	r.Use(gin.Recovery())

	// 允许跨域
	r.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	// 乐谱与规划
	r.GET("/api/scores", ws.getScoreFiles)
	r.GET("/api/score", ws.getScore)
	r.POST("/api/plan", ws.planUploadedScore)
	r.GET("/api/plan", ws.planScoreFile)

	// 预处理与演奏
	r.POST("/api/preprocess", ws.preprocessSequence)
	r.POST("/api/playback/start", ws.startPlayback)
	r.POST("/api/playback/stop", ws.stopPlayback)
	r.POST("/api/playback/rate", ws.setPlaybackRate)
	r.GET("/api/playback/status", ws.getPlaybackStatus)

	// 指令日志
	r.GET("/api/runs", ws.getRuns)
	r.GET("/api/runs/:id/commands", ws.getRunCommands)

	return r
}

// StartWebServer 启动Web服务器
func (ws *WebServer) StartWebServer() error {
	// 设置Gin为发布模式（减少日志输出）
	gin.SetMode(gin.ReleaseMode)
	r := ws.setupRouter()

	fmt.Println("🥁 双臂鼓机器人Web服务启动成功!")
	fmt.Printf("🌐 监听地址: %s\n", ws.cfg.ListenAddr)

	if err := r.Run(ws.cfg.ListenAddr); err != nil {
		fmt.Printf("❌ Web服务启动失败: %v\n", err)
		return err
	}
	return nil
}

// httpStatusForError 错误类型 → HTTP状态码
func httpStatusForError(err error) int {
	var malformed *motion.MalformedScoreError
	var tempo *motion.InvalidTempoError

	switch {
	case errors.As(err, &malformed):
		return http.StatusBadRequest
	case errors.As(err, &tempo):
		return http.StatusUnprocessableEntity
	case errors.Is(err, os.ErrNotExist):
		return http.StatusNotFound
	case errors.Is(err, ErrPlaybackBusy):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func respondError(c *gin.Context, err error) {
	c.JSON(httpStatusForError(err), gin.H{"error": err.Error()})
}

// resolveScore 把请求中的文件名限制在乐谱目录内
func (ws *WebServer) resolveScore(c *gin.Context, filename string) (string, bool) {
	if filename == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "缺少 filename 参数"})
		return "", false
	}
	fpath, err := SafeJoin(ws.cfg.ScoreDir, filename)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return "", false
	}
	if scoreFormat(fpath) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("不支持的乐谱格式: %s", filepath.Ext(fpath))})
		return "", false
	}
	return fpath, true
}

// getScoreFiles 获取乐谱文件列表
func (ws *WebServer) getScoreFiles(c *gin.Context) {
	search := c.Query("search") // 搜索关键词

	files, err := ws.scoreScanner.ScanScoreFiles(ws.cfg.ScoreDir, search)
	if err != nil {
		c.JSON(httpStatusForError(err), gin.H{
			"error": fmt.Sprintf("扫描乐谱文件失败: %v", err),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"files": files,
		"total": len(files),
	})
}

// getScore 获取解析后的乐谱
func (ws *WebServer) getScore(c *gin.Context) {
	fpath, ok := ws.resolveScore(c, c.Query("filename"))
	if !ok {
		return
	}

	score, err := ws.fileReader.LoadScore(fpath)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"filename": filepath.Base(fpath),
		"tracks":   score.Tracks(),
		"summary":  summarizeTracks(score),
	})
}

// planUploadedScore 规划请求体中的乐谱（不落盘）
func (ws *WebServer) planUploadedScore(c *gin.Context) {
	data, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "读取请求体失败"})
		return
	}

	score, err := motion.ParseScore(data)
	if err != nil {
		respondError(c, err)
		return
	}

	ws.respondPlan(c, score, "upload")
}

// planScoreFile 规划乐谱目录中的文件
func (ws *WebServer) planScoreFile(c *gin.Context) {
	fpath, ok := ws.resolveScore(c, c.Query("filename"))
	if !ok {
		return
	}

	score, err := ws.fileReader.LoadScore(fpath)
	if err != nil {
		respondError(c, err)
		return
	}

	ws.respondPlan(c, score, filepath.Base(fpath))
}

func (ws *WebServer) respondPlan(c *gin.Context, score motion.Score, source string) {
	sequence := ws.preprocessor.BuildSequence(score, source)

	resp := gin.H{
		"meta":   sequence.Meta,
		"tracks": sequence.Tracks,
	}
	if merged, _ := strconv.ParseBool(c.Query("merged")); merged {
		resp["merged"] = motion.Merge(sequence.Tracks...)
	}
	c.JSON(http.StatusOK, resp)
}

////////////////////////////////////////////////////////////////////////////////
// 预处理与演奏API
////////////////////////////////////////////////////////////////////////////////

// preprocessSequence 预处理乐谱生成执行序列文件
func (ws *WebServer) preprocessSequence(c *gin.Context) {
	var request struct {
		Filename string `json:"filename"`
	}

	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求参数"})
		return
	}

	fpath, ok := ws.resolveScore(c, request.Filename)
	if !ok {
		return
	}

	outputPath := filepath.Join(ws.cfg.ExecDir, ExecFileName(fpath))
	sequence, err := ws.preprocessor.GenerateExecutionSequence(fpath, outputPath)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":           "预处理完成",
		"exec_file":         filepath.Base(outputPath),
		"exec_path":         outputPath,
		"total_commands":    sequence.Meta.TotalCommands,
		"max_loop_duration": sequence.Meta.MaxLoopDuration,
	})
}

// startPlayback 开始演奏
func (ws *WebServer) startPlayback(c *gin.Context) {
	var request struct {
		Filename string  `json:"filename"`
		Loops    int     `json:"loops"` // 0 表示一直循环直到停止
		Rate     float64 `json:"rate"`  // 传输时钟倍率，默认 1
	}

	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求参数"})
		return
	}
	if request.Loops < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "loops 不能为负数"})
		return
	}

	// 检查是否已在演奏
	if playbackController.IsRunning() {
		c.JSON(http.StatusConflict, gin.H{"error": "演奏正在进行中，请先停止当前演奏"})
		return
	}

	fpath, ok := ws.resolveScore(c, request.Filename)
	if !ok {
		return
	}

	score, err := ws.fileReader.LoadScore(fpath)
	if err != nil {
		respondError(c, err)
		return
	}
	sequence := ws.preprocessor.BuildSequence(score, filepath.Base(fpath))

	sender, err := ws.newSender(ws.cfg)
	if err != nil {
		respondError(c, err)
		return
	}

	engine := NewExecutionEngine(sequence, ws.cfg, sender)
	if ws.commandLog != nil {
		engine.SetCommandLog(ws.commandLog)
	}

	// 异步开始播放
	if err := engine.PlayAsync(request.Loops, request.Rate); err != nil {
		sender.Close()
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":           "演奏已开始",
		"run_id":            engine.RunID(),
		"sequence_id":       sequence.Meta.ID,
		"total_commands":    sequence.Meta.TotalCommands,
		"max_loop_duration": sequence.Meta.MaxLoopDuration,
	})
}

// stopPlayback 停止演奏
func (ws *WebServer) stopPlayback(c *gin.Context) {
	if !playbackController.StopPlayback(true, stopWaitTimeout) {
		c.JSON(http.StatusOK, gin.H{"message": "当前没有演奏在进行"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "演奏已停止"})
}

// setPlaybackRate 修改传输时钟倍率
func (ws *WebServer) setPlaybackRate(c *gin.Context) {
	var request struct {
		Rate float64 `json:"rate"`
	}

	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求参数"})
		return
	}
	if err := playbackController.SetRate(request.Rate); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"rate": request.Rate})
}

// getPlaybackStatus 获取演奏状态
func (ws *WebServer) getPlaybackStatus(c *gin.Context) {
	c.JSON(http.StatusOK, playbackController.Status())
}

////////////////////////////////////////////////////////////////////////////////
// 指令日志API
////////////////////////////////////////////////////////////////////////////////

// getRuns 最近的演奏记录
func (ws *WebServer) getRuns(c *gin.Context) {
	if ws.commandLog == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "指令日志未启用"})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	runs, err := ws.commandLog.ListRuns(limit)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"runs":  runs,
		"total": len(runs),
	})
}

// getRunCommands 某次演奏已发送的指令
func (ws *WebServer) getRunCommands(c *gin.Context) {
	if ws.commandLog == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "指令日志未启用"})
		return
	}

	commands, err := ws.commandLog.RunCommands(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"run_id":   c.Param("id"),
		"commands": commands,
		"total":    len(commands),
	})
}
