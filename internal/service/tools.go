package service

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"path"
	"strings"

	"github.com/UnendingLoop/ClearCut/internal/model"
)

const (
	srcKeyPrefix    = "src/"
	resultKeyPrefix = "res/"
)

func sourceKey(id, ctype string) string {
	return srcKeyPrefix + id + model.GetImageFileExt[ctype]
}

func resultKey(id string) string {
	return resultKeyPrefix + id + model.GetImageFileExt[model.PNG]
}

// resolveContentType - заявленный тип важнее, если он осмысленный; иначе то, что нашли в заголовке файла
func resolveContentType(declared, probed string, data []byte) string {
	declared = strings.ToLower(strings.TrimSpace(declared))
	if i := strings.IndexByte(declared, ';'); i >= 0 {
		declared = strings.TrimSpace(declared[:i])
	}

	switch {
	case declared != "" && declared != "application/octet-stream":
		return declared
	case probed != "":
		return probed
	default:
		ct := http.DetectContentType(data)
		if i := strings.IndexByte(ct, ';'); i >= 0 {
			ct = ct[:i]
		}
		return ct
	}
}

// uniqueName keeps names of one download queue distinct: a.jpg and a.png both become clearcut_a.png,
// the second one is delivered as clearcut_a_2.png
func uniqueName(name string, taken map[string]bool) string {
	if !taken[name] {
		taken[name] = true
		return name
	}

	ext := path.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for i := 2; ; i++ {
		candidate := fmt.Sprintf("%s_%d%s", stem, i, ext)
		if !taken[candidate] {
			taken[candidate] = true
			return candidate
		}
	}
}

func removeID(order []string, id string) []string {
	for i, v := range order {
		if v == id {
			return append(order[:i:i], order[i+1:]...)
		}
	}
	return order
}

// decodeDataURI extracts bytes from "data:<mime>;base64,<payload>"
func decodeDataURI(uri string) ([]byte, error) {
	meta, payload, ok := strings.Cut(uri, ",")
	if !ok || !strings.HasPrefix(meta, "data:") || !strings.HasSuffix(meta, ";base64") {
		return nil, fmt.Errorf("%w: malformed data URI returned", model.ErrRemoteProcessing)
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: result is not valid base64: %v", model.ErrRemoteProcessing, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty image returned", model.ErrRemoteProcessing)
	}
	return data, nil
}

func errMessage(err error) string {
	if err == nil || strings.TrimSpace(err.Error()) == "" {
		return model.FallbackErrMsg
	}
	return err.Error()
}
