package awsdata

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"bhds/internal/logger"
)

const (
	defaultListBaseURL     = "https://s3-ap-northeast-1.amazonaws.com/data.binance.vision"
	defaultDownloadBaseURL = "https://data.binance.vision"
)

// Config 控制归档访问端点与本地缓存目录。
type Config struct {
	ListBaseURL     string
	DownloadBaseURL string
	LocalDir        string // 下载的 zip 缓存根目录
	HTTPTimeout     time.Duration
	VerifyChecksum  bool
}

func (c Config) withDefaults() Config {
	if c.ListBaseURL == "" {
		c.ListBaseURL = defaultListBaseURL
	}
	if c.DownloadBaseURL == "" {
		c.DownloadBaseURL = defaultDownloadBaseURL
	}
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = 60 * time.Second
	}
	return c
}

// Client 为归档站点的轻量只读客户端。
type Client struct {
	cfg    Config
	client *http.Client
}

func NewClient(cfg Config) (*Client, error) {
	final := cfg.withDefaults()
	if final.LocalDir == "" {
		return nil, fmt.Errorf("aws local dir 不能为空")
	}
	if err := os.MkdirAll(final.LocalDir, 0o755); err != nil {
		return nil, err
	}
	return &Client{cfg: final, client: &http.Client{Timeout: final.HTTPTimeout}}, nil
}

// listBucketResult 为 S3 风格目录列举响应。
type listBucketResult struct {
	XMLName        xml.Name `xml:"ListBucketResult"`
	IsTruncated    bool     `xml:"IsTruncated"`
	NextMarker     string   `xml:"NextMarker"`
	Contents       []struct {
		Key  string `xml:"Key"`
		Size int64  `xml:"Size"`
	} `xml:"Contents"`
	CommonPrefixes []struct {
		Prefix string `xml:"Prefix"`
	} `xml:"CommonPrefixes"`
}

// ListFiles 列举某前缀下的文件 key，按翻页 marker 拉全，返回结果排序。
func (c *Client) ListFiles(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	marker := ""
	for {
		result, err := c.listPage(ctx, prefix, marker)
		if err != nil {
			return nil, err
		}
		for _, item := range result.Contents {
			keys = append(keys, item.Key)
		}
		if !result.IsTruncated {
			break
		}
		marker = result.NextMarker
	}
	sort.Strings(keys)
	return keys, nil
}

// ListDirs 列举某前缀下的子目录名（用于枚举 symbol）。
func (c *Client) ListDirs(ctx context.Context, prefix string) ([]string, error) {
	var names []string
	marker := ""
	for {
		result, err := c.listPage(ctx, prefix, marker)
		if err != nil {
			return nil, err
		}
		for _, item := range result.CommonPrefixes {
			name := strings.TrimSuffix(strings.TrimPrefix(item.Prefix, prefix), "/")
			if name != "" {
				names = append(names, name)
			}
		}
		if !result.IsTruncated {
			break
		}
		marker = result.NextMarker
	}
	sort.Strings(names)
	return names, nil
}

func (c *Client) listPage(ctx context.Context, prefix, marker string) (*listBucketResult, error) {
	q := url.Values{}
	q.Set("delimiter", "/")
	q.Set("prefix", prefix)
	if marker != "" {
		q.Set("marker", marker)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.ListBaseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("归档列举返回状态码 %d (prefix=%s)", resp.StatusCode, prefix)
	}
	var result listBucketResult
	if err := xml.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Download 下载一个归档文件到本地缓存，已存在且校验通过则直接复用。
// 写入走临时文件 + rename，避免半截文件被后续解析误用。
func (c *Client) Download(ctx context.Context, key string) (string, error) {
	dest := filepath.Join(c.cfg.LocalDir, filepath.FromSlash(key))
	if _, err := os.Stat(dest); err == nil {
		if !c.cfg.VerifyChecksum {
			return dest, nil
		}
		if err := c.verifyChecksum(ctx, key, dest); err == nil {
			return dest, nil
		}
		logger.Warnf("本地缓存校验失败，重新下载: %s", key)
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", err
	}
	tmp := dest + ".tmp"
	if err := c.fetchTo(ctx, key, tmp); err != nil {
		_ = os.Remove(tmp)
		return "", err
	}
	if err := os.Rename(tmp, dest); err != nil {
		return "", err
	}
	if c.cfg.VerifyChecksum {
		if err := c.verifyChecksum(ctx, key, dest); err != nil {
			_ = os.Remove(dest)
			return "", err
		}
	}
	return dest, nil
}

func (c *Client) fetchTo(ctx context.Context, key, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.DownloadBaseURL+"/"+key, nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("下载 %s 返回状态码 %d", key, resp.StatusCode)
	}
	f, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// verifyChecksum 下载同名 .CHECKSUM 文件（内容为 "sha256 文件名"），
// 与本地文件的 sha256 比对。
func (c *Client) verifyChecksum(ctx context.Context, key, localPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.DownloadBaseURL+"/"+key+".CHECKSUM", nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("下载校验文件返回状态码 %d (%s)", resp.StatusCode, key)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	fields := strings.Fields(string(body))
	if len(fields) == 0 {
		return fmt.Errorf("校验文件为空: %s", key)
	}
	want := strings.ToLower(fields[0])
	f, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return err
	}
	got := hex.EncodeToString(h.Sum(nil))
	if got != want {
		return fmt.Errorf("sha256 不匹配 (%s): 期望 %s 实际 %s", key, want, got)
	}
	return nil
}
