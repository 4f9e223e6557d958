package weapi

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"net/url"
	"strings"

	"github.com/MuxYang/ncmbot/core/errs"
)

// weapi 加密参数，服务端按位校验，不能改动
const (
	presetKey = "0CoJUm6Qyw8W8jud"
	ivText    = "0102030405060708"
	pubExp    = "010001"
	modulus   = "00e0b509f6259df8642dbc35662901477df22677ec152b5ff68ace615bb7" +
		"b725152b3ab17a876aea8a5aa76d2e417629ec4ee341f56135fccf695280" +
		"104e0312ecbda92557c93870114af6c9d05c4f7f0c3685b7a46bee255932" +
		"575cce10b424d813cfe4875d3e82047b97ddef52741d546b8e289dc6935b" +
		"3ece0462db0a22b8e7"

	secretAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	secretLen      = 16
	encSecKeyWidth = 256
)

// Encode 将请求体加密为 weapi 的表单参数
// 两次 AES-128-CBC：先用固定密钥，再用随机密钥；随机密钥本身
// 经 RSA 公钥幂模运算放进 encSecKey
func Encode(params interface{}) (url.Values, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("序列化请求参数失败: %w", err)
	}

	secret, err := randomSecret()
	if err != nil {
		return nil, fmt.Errorf("生成随机密钥失败: %w", err)
	}

	return encodeWithSecret(raw, secret)
}

// encodeWithSecret 用指定的随机密钥加密，便于测试注入
func encodeWithSecret(raw []byte, secret string) (url.Values, error) {
	first, err := aesCBCEncrypt(raw, []byte(presetKey))
	if err != nil {
		return nil, fmt.Errorf("第一层加密失败: %w", err)
	}

	second, err := aesCBCEncrypt([]byte(first), []byte(secret))
	if err != nil {
		return nil, fmt.Errorf("第二层加密失败: %w", err)
	}

	values := url.Values{}
	values.Set("params", second)
	values.Set("encSecKey", rsaEncryptSecret(secret))
	return values, nil
}

// Decode 解析响应外层JSON并检查状态码
// body 不是合法JSON时返回 ProtocolError（附截断的原始内容）；
// code != 200 时返回 RemoteError（携带服务端给出的信息）
func Decode(body []byte, out interface{}) error {
	var envelope struct {
		Code    int    `json:"code"`
		Msg     string `json:"msg"`
		Message string `json:"message"`
	}

	if err := json.Unmarshal(body, &envelope); err != nil {
		return &errs.ProtocolError{
			Msg: "响应不是合法的JSON",
			Raw: truncate(string(body), 200),
		}
	}

	if envelope.Code != 200 {
		msg := envelope.Msg
		if msg == "" {
			msg = envelope.Message
		}
		if msg == "" {
			msg = "服务端拒绝了请求"
		}
		return &errs.RemoteError{Code: envelope.Code, Msg: msg}
	}

	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return &errs.ProtocolError{
				Msg: "响应结构不符合预期",
				Raw: truncate(string(body), 200),
			}
		}
	}

	return nil
}

// randomSecret 生成16位字母数字随机密钥
func randomSecret() (string, error) {
	buf := make([]byte, secretLen)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	for i, b := range buf {
		buf[i] = secretAlphabet[int(b)%len(secretAlphabet)]
	}
	return string(buf), nil
}

// aesCBCEncrypt AES-128-CBC + PKCS7填充，输出base64
func aesCBCEncrypt(plain, key []byte) (string, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}

	padded := pkcs7Pad(plain, block.BlockSize())
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, []byte(ivText)).CryptBlocks(out, padded)
	return base64.StdEncoding.EncodeToString(out), nil
}

// aesCBCDecrypt Encode 的逆运算，测试和本地回环用
func aesCBCDecrypt(encoded string, key []byte) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 || len(data)%block.BlockSize() != 0 {
		return nil, fmt.Errorf("密文长度非法: %d", len(data))
	}

	out := make([]byte, len(data))
	cipher.NewCBCDecrypter(block, []byte(ivText)).CryptBlocks(out, data)
	return pkcs7Unpad(out, block.BlockSize())
}

// rsaEncryptSecret 对随机密钥做RSA公钥加密
// 字节序先反转，按大整数做幂模运算，结果左补零到固定宽度
func rsaEncryptSecret(secret string) string {
	reversed := []byte(secret)
	for i, j := 0, len(reversed)-1; i < j; i, j = i+1, j-1 {
		reversed[i], reversed[j] = reversed[j], reversed[i]
	}

	m := new(big.Int).SetBytes(reversed)
	e, _ := new(big.Int).SetString(pubExp, 16)
	n, _ := new(big.Int).SetString(modulus, 16)

	c := new(big.Int).Exp(m, e, n)
	out := hex.EncodeToString(c.Bytes())
	if len(out) < encSecKeyWidth {
		out = strings.Repeat("0", encSecKeyWidth-len(out)) + out
	}
	return out
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padding := blockSize - len(data)%blockSize
	return append(data, bytes.Repeat([]byte{byte(padding)}, padding)...)
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("空数据")
	}
	padding := int(data[len(data)-1])
	if padding == 0 || padding > blockSize || padding > len(data) {
		return nil, fmt.Errorf("填充长度非法: %d", padding)
	}
	return data[:len(data)-padding], nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
