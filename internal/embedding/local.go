package embedding

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/nextlevelbuilder/pgclaw/internal/vector"
)

const (
	onnxSeqLen     = 128 // standard sequence length for MiniLM models
	onnxDefaultDim = 384
)

// OnnxConfig configures the in-process embedding model.
type OnnxConfig struct {
	ModelPath     string
	TokenizerPath string // HuggingFace tokenizer.json
	LibraryPath   string // libonnxruntime shared object
	Dims          int
}

// OnnxModel runs a sentence-transformer ONNX model in-process. Inference is
// read-only over shared session state, so concurrent Encode calls are safe.
type OnnxModel struct {
	session   *ort.DynamicAdvancedSession
	tokenizer *wordPieceTokenizer
	dims      int
}

// LoadOnnxModel initializes the ONNX runtime and loads the model and its
// tokenizer. The returned model holds native resources until Close.
func LoadOnnxModel(cfg OnnxConfig) (*OnnxModel, error) {
	if cfg.ModelPath == "" {
		return nil, fmt.Errorf("onnx: model path is required")
	}
	if cfg.Dims <= 0 {
		cfg.Dims = onnxDefaultDim
	}

	if cfg.LibraryPath != "" {
		ort.SetSharedLibraryPath(cfg.LibraryPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return nil, fmt.Errorf("onnx: initialize runtime: %w", err)
	}

	tokenizer, err := loadWordPieceTokenizer(cfg.TokenizerPath)
	if err != nil {
		return nil, fmt.Errorf("onnx: load tokenizer: %w", err)
	}

	session, err := ort.NewDynamicAdvancedSession(cfg.ModelPath,
		[]string{"input_ids", "attention_mask", "token_type_ids"},
		[]string{"last_hidden_state"},
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("onnx: create session: %w", err)
	}

	return &OnnxModel{session: session, tokenizer: tokenizer, dims: cfg.Dims}, nil
}

// Encode embeds each text; output order matches input order.
func (m *OnnxModel) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, 0, len(texts))
	for _, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		vec, err := m.embed(text)
		if err != nil {
			return nil, err
		}
		results = append(results, vec)
	}
	return results, nil
}

// Dimensions returns the model's output vector size.
func (m *OnnxModel) Dimensions() int { return m.dims }

// Close releases the native session.
func (m *OnnxModel) Close() error {
	if m.session != nil {
		return m.session.Destroy()
	}
	return nil
}

func (m *OnnxModel) embed(text string) ([]float32, error) {
	tokens := m.tokenizer.tokenize(text)

	inputIDs := make([]int64, onnxSeqLen)
	attentionMask := make([]int64, onnxSeqLen)
	tokenTypeIDs := make([]int64, onnxSeqLen)

	inputIDs[0] = int64(m.tokenizer.clsToken)
	attentionMask[0] = 1

	// Reserve space for [CLS] and [SEP].
	tokenLen := len(tokens)
	if tokenLen > onnxSeqLen-2 {
		tokenLen = onnxSeqLen - 2
	}
	for i := 0; i < tokenLen; i++ {
		inputIDs[i+1] = tokens[i]
		attentionMask[i+1] = 1
	}
	inputIDs[tokenLen+1] = int64(m.tokenizer.sepToken)
	attentionMask[tokenLen+1] = 1

	shape := ort.NewShape(1, int64(onnxSeqLen))
	inputTensor, err := ort.NewTensor(shape, inputIDs)
	if err != nil {
		return nil, fmt.Errorf("onnx: input_ids tensor: %w", err)
	}
	defer inputTensor.Destroy()

	maskTensor, err := ort.NewTensor(shape, attentionMask)
	if err != nil {
		return nil, fmt.Errorf("onnx: attention_mask tensor: %w", err)
	}
	defer maskTensor.Destroy()

	typeTensor, err := ort.NewTensor(shape, tokenTypeIDs)
	if err != nil {
		return nil, fmt.Errorf("onnx: token_type_ids tensor: %w", err)
	}
	defer typeTensor.Destroy()

	outputs := []ort.Value{nil}
	if err := m.session.Run([]ort.Value{inputTensor, maskTensor, typeTensor}, outputs); err != nil {
		return nil, fmt.Errorf("onnx: inference: %w", err)
	}
	defer func() {
		for _, out := range outputs {
			if out != nil {
				out.Destroy()
			}
		}
	}()

	outTensor, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("onnx: unexpected output tensor type")
	}

	return m.pool(outTensor, attentionMask)
}

// pool reduces the model output to a single normalized vector: mean pooling
// over attended tokens for [1, seq, hidden] outputs, pass-through for
// already-pooled [1, hidden] outputs.
func (m *OnnxModel) pool(out *ort.Tensor[float32], attentionMask []int64) ([]float32, error) {
	data := out.GetData()
	shape := out.GetShape()

	switch len(shape) {
	case 2:
		if len(data) < m.dims {
			return nil, fmt.Errorf("onnx: output size %d, expected %d", len(data), m.dims)
		}
		vec := make([]float32, m.dims)
		copy(vec, data[:m.dims])
		return vector.Normalize(vec), nil

	case 3:
		seqLen, hidden := int(shape[1]), int(shape[2])
		if shape[0] != 1 || hidden != m.dims {
			return nil, fmt.Errorf("onnx: unexpected output shape %v", shape)
		}
		vec := make([]float32, m.dims)
		var attended float32
		for i := 0; i < seqLen; i++ {
			if attentionMask[i] == 0 {
				continue
			}
			attended++
			offset := i * hidden
			for j := 0; j < hidden; j++ {
				vec[j] += data[offset+j]
			}
		}
		if attended == 0 {
			return nil, fmt.Errorf("onnx: no attended tokens")
		}
		for j := range vec {
			vec[j] /= attended
		}
		return vector.Normalize(vec), nil

	default:
		return nil, fmt.Errorf("onnx: unexpected output shape %v", shape)
	}
}

// wordPieceTokenizer is a BERT-style WordPiece tokenizer loaded from a
// HuggingFace tokenizer.json vocabulary.
type wordPieceTokenizer struct {
	vocab    map[string]int
	clsToken int
	sepToken int
	unkToken int
}

func loadWordPieceTokenizer(path string) (*wordPieceTokenizer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Model struct {
			Vocab map[string]int `json:"vocab"`
		} `json:"model"`
	}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, err
	}
	if len(parsed.Model.Vocab) == 0 {
		return nil, fmt.Errorf("empty vocabulary in %s", path)
	}

	return &wordPieceTokenizer{
		vocab:    parsed.Model.Vocab,
		clsToken: 101, // [CLS]
		sepToken: 102, // [SEP]
		unkToken: 100, // [UNK]
	}, nil
}

func (t *wordPieceTokenizer) tokenize(text string) []int64 {
	words := strings.Fields(strings.ToLower(text))

	var tokens []int64
	for _, word := range words {
		word = strings.Trim(word, ".,!?;:\"'")
		if word == "" {
			continue
		}
		if id, ok := t.vocab[word]; ok {
			tokens = append(tokens, int64(id))
			continue
		}
		for _, sub := range t.wordPieces(word) {
			if id, ok := t.vocab[sub]; ok {
				tokens = append(tokens, int64(id))
			} else {
				tokens = append(tokens, int64(t.unkToken))
			}
		}
	}
	return tokens
}

// wordPieces splits a word into longest-prefix subwords, using the "##"
// continuation prefix for non-initial pieces.
func (t *wordPieceTokenizer) wordPieces(word string) []string {
	var pieces []string
	start := 0
	for start < len(word) {
		end := len(word)
		found := false
		for end > start {
			sub := word[start:end]
			if start > 0 {
				sub = "##" + sub
			}
			if _, ok := t.vocab[sub]; ok {
				pieces = append(pieces, sub)
				start = end
				found = true
				break
			}
			end--
		}
		if !found {
			pieces = append(pieces, "[UNK]")
			start++
		}
	}
	return pieces
}
