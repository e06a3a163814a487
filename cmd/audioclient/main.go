package main

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// WAV header is 44 bytes for standard PCM files
const wavHeaderSize = 44

type jobStatus struct {
	JobID    string `json:"job_id"`
	Status   string `json:"status"`
	Progress int    `json:"progress"`
	Message  string `json:"message"`
}

type client struct {
	base   string
	apiKey string
	http   *http.Client
}

func main() {
	audioFile := flag.String("audio", "testdata/meeting.wav", "Path to the meeting recording")
	serverAddr := flag.String("server", "http://localhost:5000", "HTTP API base URL")
	apiKey := flag.String("key", os.Getenv("MICROSERVICE_API_KEY"), "API key sent as X-API-Key")
	modelSize := flag.String("model-size", "base", "Whisper model size")
	summaryModel := flag.String("summarize", "", "Summarization model to run after completion, e.g. gpt-4o or ollama")
	poll := flag.Duration("poll", 2*time.Second, "Status polling interval")
	flag.Parse()

	if strings.EqualFold(filepath.Ext(*audioFile), ".wav") {
		describeWAV(*audioFile)
	}

	c := &client{base: strings.TrimRight(*serverAddr, "/"), apiKey: *apiKey, http: &http.Client{Timeout: 5 * time.Minute}}

	jobID, err := c.upload(*audioFile, *modelSize)
	if err != nil {
		log.Fatalf("Upload failed: %v", err)
	}
	log.Printf("Job submitted: jobId=%s", jobID)

	var last jobStatus
	for {
		var st jobStatus
		if err := c.do(http.MethodGet, "/v1/status/"+jobID, nil, "", &st); err != nil {
			log.Fatalf("Status request failed: %v", err)
		}
		if st.Progress != last.Progress || st.Message != last.Message {
			log.Printf("[%3d%%] %s", st.Progress, st.Message)
		}
		last = st
		if st.Status != "processing" {
			break
		}
		time.Sleep(*poll)
	}
	if last.Status != "completed" {
		log.Fatalf("Job %s failed: %s", jobID, last.Message)
	}

	var result json.RawMessage
	if err := c.do(http.MethodGet, "/v1/results/"+jobID, nil, "", &result); err != nil {
		log.Fatalf("Results request failed: %v", err)
	}
	var pretty bytes.Buffer
	json.Indent(&pretty, result, "", "  ")
	fmt.Println(pretty.String())

	if *summaryModel == "" {
		return
	}
	body, _ := json.Marshal(map[string]string{"model": *summaryModel})
	var summary struct {
		Summary string `json:"summary"`
	}
	if err := c.do(http.MethodPost, "/v1/summarize/"+jobID, bytes.NewReader(body), "application/json", &summary); err != nil {
		log.Fatalf("Summarize request failed: %v", err)
	}
	log.Printf("Summary (%s):\n%s", *summaryModel, summary.Summary)
}

func (c *client) upload(path, modelSize string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("model_size", modelSize); err != nil {
		return "", err
	}
	fw, err := mw.CreateFormFile("audio_file", filepath.Base(path))
	if err != nil {
		return "", err
	}
	n, err := io.Copy(fw, f)
	if err != nil {
		return "", err
	}
	if err := mw.Close(); err != nil {
		return "", err
	}
	log.Printf("Uploading %s (%d bytes)", filepath.Base(path), n)

	var resp struct {
		JobID string `json:"job_id"`
	}
	if err := c.do(http.MethodPost, "/v1/process", &body, mw.FormDataContentType(), &resp); err != nil {
		return "", err
	}
	return resp.JobID, nil
}

func (c *client) do(method, path string, body io.Reader, contentType string, out any) error {
	req, err := http.NewRequest(method, c.base+path, body)
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("%s %s: %d %s", method, path, resp.StatusCode, strings.TrimSpace(string(data)))
	}
	return json.Unmarshal(data, out)
}

// describeWAV logs the PCM format of a WAV file. The service converts any
// format, so mismatches are only reported.
func describeWAV(path string) {
	f, err := os.Open(path)
	if err != nil {
		return
	}
	defer f.Close()

	header := make([]byte, wavHeaderSize)
	if _, err := io.ReadFull(f, header); err != nil {
		log.Printf("Warning: cannot read WAV header: %v", err)
		return
	}
	if string(header[0:4]) != "RIFF" || string(header[8:12]) != "WAVE" {
		log.Printf("Warning: %s is not a RIFF/WAVE file", path)
		return
	}

	audioFormat := binary.LittleEndian.Uint16(header[20:22])
	numChannels := binary.LittleEndian.Uint16(header[22:24])
	sampleRate := binary.LittleEndian.Uint32(header[24:28])
	bitsPerSample := binary.LittleEndian.Uint16(header[34:36])

	log.Printf("WAV file: format=%d channels=%d sampleRate=%d bitsPerSample=%d",
		audioFormat, numChannels, sampleRate, bitsPerSample)

	if audioFormat != 1 || numChannels != 1 || sampleRate != 16000 {
		log.Printf("Note: not 16 kHz mono PCM, the service will convert it")
	}
}
