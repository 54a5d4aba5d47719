// Package capture produces camera frames for get_frame requests.
//
// A Capturer returns one JPEG. Two are provided:
//
//   - ExecCapturer runs a camera command (libcamera-still, fswebcam, ...)
//     that writes the image to stdout. The command runs in its own process
//     group so a timeout kills any helpers it spawned.
//   - FileCapturer serves a still image from disk, for rigs without a camera.
//
// Worker runs captures on a fixed pool of goroutines fed by a bounded queue,
// off the MQTT callback path and off the agent. A capturer that ignores its
// deadline is abandoned and keeps its slot until it returns. Every request is
// answered on prefix/<id>/frame_response, successful or not, including frames
// too large to publish:
//
//	{"frameData":"<base64>","timestamp":1740830400.25,"success":true}
//	{"frameData":"","timestamp":1740830400.25,"success":false,"error":"capture queue full"}
package capture
