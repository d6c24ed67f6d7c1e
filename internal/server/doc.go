// Package server 提供命令面 HTTP 服务器的生命周期管理：
// 非阻塞启动、并发连接上限、优雅关闭与退出信号等待。
package server
